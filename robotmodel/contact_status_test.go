// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package robotmodel

import (
	"testing"

	"github.com/cpmech/gosl/chk"
)

func Test_contact_status_slot_index_packs_active_points_in_order(tst *testing.T) {
	chk.PrintTitle("contact status packs active points into slot indices in order")

	cs := NewContactStatus(4)
	cs.Activate(1)
	cs.Activate(3)

	slot := cs.SlotIndex()
	chk.Ints(tst, "slot", slot, []int{-1, 0, -1, 1})

	if cs.Dimf() != 3*2 {
		tst.Fatalf("Dimf() = %d, want %d", cs.Dimf(), 3*2)
	}
}

func Test_contact_status_slot_index_all_inactive(tst *testing.T) {
	chk.PrintTitle("contact status slot index is all -1 when nothing is active")

	cs := NewContactStatus(3)
	slot := cs.SlotIndex()
	chk.Ints(tst, "slot", slot, []int{-1, -1, -1})
}

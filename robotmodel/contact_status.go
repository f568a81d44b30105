// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package robotmodel

import "github.com/cpmech/gosl/utl"

// ContactStatus is a per-stage descriptor enumerating active point
// contacts and their total force-space dimension. It is a pure value: two
// ContactStatus are equal iff their active flags agree element-wise.
type ContactStatus struct {
	active []bool
}

// NewContactStatus returns a ContactStatus with maxPoints contacts, all
// inactive.
func NewContactStatus(maxPoints int) ContactStatus {
	return ContactStatus{active: make([]bool, maxPoints)}
}

// MaxPoints returns the number of contact slots this status was built with.
func (c *ContactStatus) MaxPoints() int { return len(c.active) }

// Activate marks contact i as active. Out-of-range i is a programmer error.
func (c *ContactStatus) Activate(i int) { c.active[i] = true }

// Deactivate marks contact i as inactive.
func (c *ContactStatus) Deactivate(i int) { c.active[i] = false }

// Set overwrites the whole flag vector. len(bools) must equal MaxPoints().
func (c *ContactStatus) Set(bools []bool) {
	copy(c.active, bools)
}

// IsActive reports whether contact i is currently active.
func (c *ContactStatus) IsActive(i int) bool { return c.active[i] }

// NumActive returns the number of active contacts.
func (c *ContactStatus) NumActive() int {
	n := 0
	for _, a := range c.active {
		if a {
			n++
		}
	}
	return n
}

// Dimf returns 3 * NumActive(), the force-space dimension of this status.
func (c *ContactStatus) Dimf() int { return 3 * c.NumActive() }

// Equal reports element-wise equality of the active flags.
func (c ContactStatus) Equal(o ContactStatus) bool {
	if len(c.active) != len(o.active) {
		return false
	}
	for i := range c.active {
		if c.active[i] != o.active[i] {
			return false
		}
	}
	return true
}

// SlotIndex returns, for each contact point 0..MaxPoints()-1, the index
// that point occupies within the packed active-contact force vector
// (0-based, in point order), or -1 if the point is currently inactive.
// A Model implementation's ContactDistance/ContactDistanceJacobian/
// ComputeBaumgarteResidual methods use this to scatter per-point results
// into the packed slots the solver's Component stack reads, the same
// vertex-to-packed-id lookup fem/e_u_contact.go builds via
// utl.IntVals(o.Nu, -1) before filling in whichever vertices are
// currently part of the contact surface.
func (c *ContactStatus) SlotIndex() []int {
	slot := utl.IntVals(len(c.active), -1)
	next := 0
	for i, active := range c.active {
		if active {
			slot[i] = next
			next++
		}
	}
	return slot
}

// Clone returns an independent copy.
func (c ContactStatus) Clone() ContactStatus {
	cp := make([]bool, len(c.active))
	copy(cp, c.active)
	return ContactStatus{active: cp}
}

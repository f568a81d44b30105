// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/cpmech/gosl/chk"
)

func Test_pool_runs_every_index_exactly_once(tst *testing.T) {
	chk.PrintTitle("pool runs every index exactly once")

	const n = 50
	seen := make([]int32, n)
	p := NewPool(4)
	err := p.Run(n, func(i int) error {
		atomic.AddInt32(&seen[i], 1)
		return nil
	})
	if err != nil {
		tst.Fatalf("Run failed: %v", err)
	}
	for i, c := range seen {
		if c != 1 {
			tst.Fatalf("index %d ran %d times, want 1", i, c)
		}
	}
}

func Test_pool_returns_first_error_by_index(tst *testing.T) {
	chk.PrintTitle("pool returns the lowest-index error")

	p := NewPool(3)
	boom := errors.New("boom at 2")
	err := p.Run(5, func(i int) error {
		if i == 2 {
			return boom
		}
		return nil
	})
	if err != boom {
		tst.Fatalf("Run returned %v, want %v", err, boom)
	}
}

func Test_pool_with_zero_or_negative_workers_still_runs_single_threaded(tst *testing.T) {
	chk.PrintTitle("pool clamps numProc<=0 to one worker")

	p := NewPool(0)
	if p.NumProc() != 1 {
		tst.Fatalf("NumProc() = %d, want 1", p.NumProc())
	}
	sum := 0
	err := p.Run(10, func(i int) error {
		sum += i // safe: single worker, no data race
		return nil
	})
	if err != nil {
		tst.Fatalf("Run failed: %v", err)
	}
	if sum != 45 {
		tst.Fatalf("sum = %d, want 45", sum)
	}
}

func Test_pool_run_of_zero_is_a_no_op(tst *testing.T) {
	chk.PrintTitle("pool Run(0, ...) never calls fn")

	p := NewPool(4)
	called := false
	err := p.Run(0, func(i int) error {
		called = true
		return nil
	})
	if err != nil {
		tst.Fatalf("Run failed: %v", err)
	}
	if called {
		tst.Fatalf("fn was called on an empty range")
	}
}

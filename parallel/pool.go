// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package parallel implements the fixed-size worker pool the horizon
// drivers (ocp.OCP, ocp.ParNMPC) run their per-stage assembly and
// coarse-update phases on: num_proc
// goroutines draining a stage-index channel, with an optional MPI
// cross-process reduction layered on top when running distributed.
// Grounded on fem/solver.go's use of gosl/mpi for domain-level parallel
// reduction (AllReduceSum over d.Fb), generalized from MPI-only to a
// goroutine pool with MPI as an optional outer layer.
package parallel

import (
	"sync"

	"github.com/cpmech/gosl/mpi"
)

// Pool runs a fixed number of worker goroutines across phase barriers: one
// call to Run blocks until every index in [0, n) has been processed, then
// returns. Reused across phases and across outer iterations; it never
// holds goroutines alive between calls.
type Pool struct {
	numProc int
}

// NewPool returns a Pool with numProc workers. numProc <= 0 means "use a
// single worker" (no parallelism, still correct).
func NewPool(numProc int) *Pool {
	if numProc <= 0 {
		numProc = 1
	}
	return &Pool{numProc: numProc}
}

// NumProc returns the configured worker count.
func (p *Pool) NumProc() int { return p.numProc }

// Run calls fn(i) for every i in [0, n), distributing indices across
// p.numProc workers, and blocks until all have completed (the "barrier
// after assembly" / "barrier after backward Riccati" suspension points).
// Errors from fn are collected; Run returns the first one encountered, by
// index order, or nil if every call succeeded.
func (p *Pool) Run(n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	workers := p.numProc
	if workers > n {
		workers = n
	}
	errs := make([]error, n)
	next := make(chan int, n)
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range next {
				errs[i] = fn(i)
			}
		}()
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// AllReduceSum reduces x across MPI ranks in place when running
// distributed (mpi.IsOn()); a no-op single-process build leaves x
// untouched. Used by the horizon drivers to combine each rank's
// squared-KKT-error sum and 0/1 factorization-failure flag across ranks.
func AllReduceSum(x, buffer []float64) {
	if !mpi.IsOn() {
		return
	}
	mpi.AllReduceSum(x, buffer)
}

// Rank and Size mirror gosl/mpi's process-identification helpers for
// callers that need to partition the horizon across MPI ranks before
// handing their local slice to a Pool.
func Rank() int {
	if !mpi.IsOn() {
		return 0
	}
	return mpi.Rank()
}

func Size() int {
	if !mpi.IsOn() {
		return 1
	}
	return mpi.Size()
}

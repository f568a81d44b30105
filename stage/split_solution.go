// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stage implements the fixed-capacity, per-stage containers that
// the horizon driver indexes into: SplitSolution, SplitDirection,
// KKTMatrix, and KKTResidual. Every buffer is allocated once at
// construction, sized to the stage's maximum contact-force dimension
// (max_dimf), and never reallocated; ContactStatus changes only rebind the
// logical view, mirroring fem/domain.go's pre-sized Fb/Kb buffers in the
// teacher.
package stage

import "github.com/cpmech/ocprobot/robotmodel"

// SplitSolution holds the primal-dual iterate at one stage of the horizon:
// costates (lmd, gmm), equality multipliers (mu), acceleration (a),
// packed active contact forces (f), configuration (q), velocity (v),
// control torque (u), and torque-bound multipliers (beta).
type SplitSolution struct {
	nq, nv, npassive, maxDimf int

	Lmd  []float64 // costate conjugate to q, size nv
	Gmm  []float64 // costate conjugate to v, size nv
	Mu   []float64 // equality multipliers, logical size np+dimf
	A    []float64 // acceleration, size nv
	F    []float64 // active contact forces, logical size dimf
	Q    []float64 // configuration, size nq
	V    []float64 // velocity, size nv
	U    []float64 // control torque, size nv
	Beta []float64 // torque-bound multipliers, size nv

	dimf int // current logical size of F and of the contact part of Mu
}

// NewSplitSolution allocates a SplitSolution sized to the robot's
// dimensions and maxDimf = 3*maxPointContacts.
func NewSplitSolution(robot robotmodel.Model) *SplitSolution {
	nq, nv, np := robot.Dimq(), robot.Dimv(), robot.DimPassive()
	maxDimf := 3 * robot.MaxPointContacts()
	return &SplitSolution{
		nq: nq, nv: nv, npassive: np, maxDimf: maxDimf,
		Lmd:  make([]float64, nv),
		Gmm:  make([]float64, nv),
		Mu:   make([]float64, np+maxDimf),
		A:    make([]float64, nv),
		F:    make([]float64, maxDimf),
		Q:    make([]float64, nq),
		V:    make([]float64, nv),
		U:    make([]float64, nv),
		Beta: make([]float64, nv),
	}
}

// SetContactStatus rebinds the logical size of F and the contact part of Mu
// to cs.Dimf(); no reallocation occurs. Panics (programmer error) if
// cs.Dimf() exceeds the capacity this SplitSolution was built with.
func (s *SplitSolution) SetContactStatus(cs robotmodel.ContactStatus) {
	dimf := cs.Dimf()
	if dimf > s.maxDimf {
		panic("stage: SetContactStatus: dimf exceeds max_dimf capacity")
	}
	s.dimf = dimf
}

// Dimf returns the current logical contact-force dimension.
func (s *SplitSolution) Dimf() int { return s.dimf }

// Nc returns np + dimf, the current equality-constraint dimension.
func (s *SplitSolution) Nc() int { return s.npassive + s.dimf }

// Fview returns the logical (active-only) view of F.
func (s *SplitSolution) Fview() []float64 { return s.F[:s.dimf] }

// Muview returns the logical view of Mu, sized np+dimf.
func (s *SplitSolution) Muview() []float64 { return s.Mu[:s.npassive+s.dimf] }

// DimKKT returns 5*nv + np + 2*dimf, the linearized block size for this
// stage.
func (s *SplitSolution) DimKKT() int {
	return 5*s.nv + s.npassive + 2*s.dimf
}

// Block returns the flattened iterate of length DimKKT(), in the same
// (lmd, gmm, mu, a, f, q, v) order SplitDirection.Block() uses for the
// matching Newton step, so the two can be compared component-by-component
// by a scaled convergence check such as la.VecRmsErr.
func (s *SplitSolution) Block() []float64 {
	n := s.DimKKT()
	out := make([]float64, 0, n)
	out = append(out, s.Lmd...)
	out = append(out, s.Gmm...)
	out = append(out, s.Muview()...)
	out = append(out, s.A...)
	out = append(out, s.Fview()...)
	out = append(out, s.Q...)
	out = append(out, s.V...)
	return out
}

// Zero zeros every buffer (logical views only).
func (s *SplitSolution) Zero() {
	zero(s.Lmd)
	zero(s.Gmm)
	zero(s.Muview())
	zero(s.A)
	zero(s.Fview())
	zero(s.Q)
	zero(s.V)
	zero(s.U)
	zero(s.Beta)
}

// Random fills every buffer with pseudo-random values in [-1,1), using the
// supplied source. Intended for tests exercising round-trip/identity
// properties; the core itself never calls this.
func (s *SplitSolution) Random(next func() float64) {
	fillRandom(s.Lmd, next)
	fillRandom(s.Gmm, next)
	fillRandom(s.Muview(), next)
	fillRandom(s.A, next)
	fillRandom(s.Fview(), next)
	fillRandom(s.Q, next)
	fillRandom(s.V, next)
	fillRandom(s.U, next)
	fillRandom(s.Beta, next)
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}

func fillRandom(v []float64, next func() float64) {
	for i := range v {
		v[i] = next()
	}
}

// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package constraints implements the primal-dual interior-point (PDIP)
// inequality stack: per-component slack/dual data, barrier condensation,
// fraction-to-boundary step sizing, and the ContactComplementarity
// specialization. The deep-inheritance constraint hierarchy of the
// original is re-architected as a sum type over component kinds (§9),
// each satisfying the Component interface below, the way gofem's Elem
// interface (fem/element.go) lets SplitOCP iterate over heterogeneous
// element kinds without a class hierarchy.
package constraints

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/num"
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// ComponentData holds one inequality component's slack, dual, and
// derived quantities. All slices have identical length dimc; slack and
// dual must remain strictly positive at all times after initialization.
type ComponentData struct {
	Slack, Dual     []float64
	Dslack, Ddual   []float64
	Residual        []float64 // primal residual r = g(x) - slack
	Duality         []float64 // slack*dual - barrier
}

// NewComponentData allocates a ComponentData of the given dimension.
func NewComponentData(dimc int) *ComponentData {
	return &ComponentData{
		Slack: make([]float64, dimc), Dual: make([]float64, dimc),
		Dslack: make([]float64, dimc), Ddual: make([]float64, dimc),
		Residual: make([]float64, dimc), Duality: make([]float64, dimc),
	}
}

// Dimc returns the component's dimension.
func (d *ComponentData) Dimc() int { return len(d.Slack) }

// CheckPositivity reports whether Slack and Dual are componentwise
// strictly positive.
func (d *ComponentData) CheckPositivity() bool {
	for i := range d.Slack {
		if d.Slack[i] <= 0 || d.Dual[i] <= 0 {
			return false
		}
	}
	return true
}

// SetSlackAndDualPositive lifts slack until it exceeds barrier by
// repeatedly adding barrier (original_source pdipm.hxx's while-loop, kept
// for parity: a single max() is the closed-form equivalent only when g(x)
// starts within one barrier step of zero), then sets dual = barrier/slack.
func SetSlackAndDualPositive(barrier float64, data *ComponentData) {
	if barrier <= 0 {
		chk.Panic("constraints: SetSlackAndDualPositive: barrier must be > 0")
	}
	for i := range data.Slack {
		for data.Slack[i] < barrier {
			data.Slack[i] += barrier
		}
		data.Dual[i] = barrier / data.Slack[i]
	}
}

// ComputeDuality sets duality = slack*dual - barrier.
func ComputeDuality(barrier float64, data *ComponentData) {
	for i := range data.Slack {
		data.Duality[i] = data.Slack[i]*data.Dual[i] - barrier
	}
}

// ComputeDualDirection sets ddual = -(dual*dslack + duality)/slack.
func ComputeDualDirection(data *ComponentData) {
	for i := range data.Slack {
		data.Ddual[i] = -(data.Dual[i]*data.Dslack[i] + data.Duality[i]) / data.Slack[i]
	}
}

// CostBarrier returns -barrier * sum(log(vec)), the log-barrier cost term.
func CostBarrier(barrier float64, vec []float64) float64 {
	var sum float64
	for _, x := range vec {
		sum += math.Log(x)
	}
	return -barrier * sum
}

// FractionToBoundary returns min(1, min_{i: fraction in (0,1)} -rate*vec_i/dvec_i),
// following original_source pdipm.hxx exactly: only components whose
// -rate*(vec/dvec) lies strictly in (0,1) participate in the minimum
// (components receding from the boundary, dvec_i >= 0, are excluded
// rather than clamped).
func FractionToBoundary(rate float64, vec, dvec []float64) float64 {
	if rate <= 0 || rate > 1 {
		chk.Panic("constraints: FractionToBoundary: rate must be in (0,1]")
	}
	min := 1.0
	for i := range vec {
		if dvec[i] == 0 {
			continue
		}
		f := -rate * (vec[i] / dvec[i])
		if f > 0 && f < 1 && f < min {
			min = f
		} else if f > 0 && f < 1 {
			// fallback bisection guard for near-degenerate components,
			// refined with num.Bisection rather than trusting the closed
			// form blindly when dvec[i] is tiny.
			if math.Abs(dvec[i]) < 1e-14 {
				min = refineDegenerateFraction(rate, vec[i], dvec[i], min)
			}
		}
	}
	return min
}

// refineDegenerateFraction uses gosl/num's bisection root finder as a
// fallback when the closed-form fraction-to-boundary ratio is numerically
// degenerate (dvec component ~ 0); this never triggers in the common case
// and exists purely as a defensive refinement of the closed form above.
func refineDegenerateFraction(rate, v, dv, fallback float64) float64 {
	if dv >= 0 {
		return fallback
	}
	f := func(alpha float64) float64 { return v + alpha*dv }
	root, err := num.Bisection(f, 0, 1, 1e-12)
	if err != nil {
		return fallback
	}
	candidate := rate * root
	if candidate < fallback {
		return candidate
	}
	return fallback
}

// FractionToBoundarySlack and FractionToBoundaryDual are convenience
// accessor wrappers around FractionToBoundary.
func FractionToBoundarySlack(rate float64, data *ComponentData) float64 {
	return FractionToBoundary(rate, data.Slack, data.Dslack)
}
func FractionToBoundaryDual(rate float64, data *ComponentData) float64 {
	return FractionToBoundary(rate, data.Dual, data.Ddual)
}

// Component is the capability set every PDIP inequality-component kind
// implements, a flat interface in place of the deep class hierarchy in
// the original.
type Component interface {
	Dimc() int
	Data() *ComponentData

	IsFeasible(robot robotmodel.Model, s *stage.SplitSolution) bool
	SetSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution)
	AugmentDualResidual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual)
	CondenseSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual)
	ComputeSlackAndDualDirection(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, d *stage.SplitDirection)

	ResidualL1Norm() float64
	SquaredKKTErrorNorm() float64
	CostBarrier(barrier float64) float64
}

// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// Constraints is a stack of inequality components sharing a barrier
// parameter; it is the per-stage PDIP handler.
type Constraints struct {
	components   []Component
	barrier      float64
	fractionRate float64
}

// NewConstraints returns an empty Constraints stack with the given shared
// barrier parameter and fraction-to-boundary rate (typical 0.995).
func NewConstraints(barrier, fractionRate float64) *Constraints {
	return &Constraints{barrier: barrier, fractionRate: fractionRate}
}

// Push appends a component to the stack.
func (c *Constraints) Push(comp Component) { c.components = append(c.components, comp) }

// Barrier returns the shared barrier parameter μ.
func (c *Constraints) Barrier() float64 { return c.barrier }

// SetBarrier updates the shared barrier parameter (used by the OCP driver
// to decay μ across outer iterations).
func (c *Constraints) SetBarrier(mu float64) { c.barrier = mu }

// IsFeasible returns false if any component reports a strict primal
// violation (used to early-reject an initial iterate).
func (c *Constraints) IsFeasible(robot robotmodel.Model, s *stage.SplitSolution) bool {
	for _, comp := range c.components {
		if !comp.IsFeasible(robot, s) {
			return false
		}
	}
	return true
}

// SetSlackAndDual initializes every component's slack/dual. An infeasible
// initial guess is never fatal: this forces
// feasibility by slack lifting (see SetSlackAndDualPositive).
func (c *Constraints) SetSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) {
	for _, comp := range c.components {
		comp.SetSlackAndDual(robot, dtau, s)
	}
}

// AugmentDualResidual adds every component's gradient contribution into r.
func (c *Constraints) AugmentDualResidual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual) {
	for _, comp := range c.components {
		comp.AugmentDualResidual(robot, dtau, s, r)
	}
}

// CondenseSlackAndDual adds every component's Hessian and gradient
// condensation into m and r.
func (c *Constraints) CondenseSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) {
	for _, comp := range c.components {
		comp.CondenseSlackAndDual(robot, dtau, s, m, r)
	}
}

// ComputeSlackAndDualDirection computes every component's ds, dz given the
// primal-dual Newton step d.
func (c *Constraints) ComputeSlackAndDualDirection(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, d *stage.SplitDirection) {
	for _, comp := range c.components {
		comp.ComputeSlackAndDualDirection(robot, dtau, s, d)
	}
}

// MaxSlackStepSize returns the fraction-to-boundary step size across every
// component's slack, the smallest over the stack.
func (c *Constraints) MaxSlackStepSize() float64 {
	min := 1.0
	for _, comp := range c.components {
		f := FractionToBoundarySlack(c.fractionRate, comp.Data())
		if f < min {
			min = f
		}
	}
	return min
}

// MaxDualStepSize returns the fraction-to-boundary step size across every
// component's dual.
func (c *Constraints) MaxDualStepSize() float64 {
	min := 1.0
	for _, comp := range c.components {
		f := FractionToBoundaryDual(c.fractionRate, comp.Data())
		if f < min {
			min = f
		}
	}
	return min
}

// ResidualL1Norm sums every component's primal/duality L1 residual norm.
func (c *Constraints) ResidualL1Norm() float64 {
	var sum float64
	for _, comp := range c.components {
		sum += comp.ResidualL1Norm()
	}
	return sum
}

// SquaredKKTErrorNorm sums every component's squared KKT error norm.
func (c *Constraints) SquaredKKTErrorNorm() float64 {
	var sum float64
	for _, comp := range c.components {
		sum += comp.SquaredKKTErrorNorm()
	}
	return sum
}

// CostBarrier sums every component's log-barrier cost contribution, for
// use by the line-search filter's cost axis.
func (c *Constraints) CostBarrier() float64 {
	var sum float64
	for _, comp := range c.components {
		sum += comp.CostBarrier(c.barrier)
	}
	return sum
}

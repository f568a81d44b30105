// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package costfunc implements the stage-wise cost as a sum of additive
// components, the way msolid/elasticity.go and msolid/hyperelast1.go's
// material models additively contribute stress and stiffness to an
// element's residual/Jacobian: every Component.L/Lq/... call must add
// into the caller's buffers, never zero them first.
package costfunc

import (
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// Component is one additive contribution to the stage cost.
type Component interface {
	// L returns this component's contribution to the stage cost value.
	L(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) float64

	// Lq, Lv, La, Lu, Lf add this component's gradient contribution into
	// the corresponding KKTResidual block.
	Lq(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual)
	Lv(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual)
	La(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual)
	Lu(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual)
	Lf(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual)

	// Lqq, Lvv, Laa, Luu, Lff add this component's (PSD) Hessian
	// contribution into the corresponding KKTMatrix block.
	Lqq(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix)
	Lvv(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix)
	Laa(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix)
	Luu(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) [][]float64 // condensed separately, see dynamics.RobotDynamics
	Lff(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix)

	// Terminal variants: phi is the terminal cost, contributing to the
	// value/gradient/Hessian at the final stage only, over (q, v).
	Phi(robot robotmodel.Model, s *stage.SplitSolution) float64
	Phiq(robot robotmodel.Model, s *stage.SplitSolution, r *stage.KKTResidual)
	Phiv(robot robotmodel.Model, s *stage.SplitSolution, r *stage.KKTResidual)
	Phiqq(robot robotmodel.Model, s *stage.SplitSolution, m *stage.KKTMatrix)
	Phivv(robot robotmodel.Model, s *stage.SplitSolution, m *stage.KKTMatrix)
}

// CostFunction is the sum of its Components; every method delegates to
// each component in turn and accumulates.
type CostFunction struct {
	components []Component
}

// NewCostFunction returns an empty CostFunction.
func NewCostFunction() *CostFunction { return &CostFunction{} }

// Push appends a component to the sum.
func (c *CostFunction) Push(comp Component) { c.components = append(c.components, comp) }

// L sums every component's stage cost value.
func (c *CostFunction) L(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) float64 {
	var total float64
	for _, comp := range c.components {
		total += comp.L(robot, dtau, s)
	}
	return total
}

// Linearize adds every component's gradient and Hessian contribution into
// r and m.
func (c *CostFunction) Linearize(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) {
	for _, comp := range c.components {
		comp.Lq(robot, dtau, s, r)
		comp.Lv(robot, dtau, s, r)
		comp.La(robot, dtau, s, r)
		comp.Lu(robot, dtau, s, r)
		comp.Lf(robot, dtau, s, r)
		comp.Lqq(robot, dtau, s, m)
		comp.Lvv(robot, dtau, s, m)
		comp.Laa(robot, dtau, s, m)
		comp.Lff(robot, dtau, s, m)
	}
}

// Quu adds every component's condensed torque Hessian contribution into
// the caller-owned nv x nv buffer quu. Luu is condensed ahead of the
// stage's backward Riccati pass (torque u never appears in KKTMatrix), so
// ocp.SplitOCP calls this directly rather than through Linearize and
// hands the result to dynamics.RobotDynamics.Condense, which folds it
// into Qqq/Qqa/... alongside the inverse-dynamics Jacobians.
func (c *CostFunction) Quu(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, quu [][]float64) {
	for _, comp := range c.components {
		luu := comp.Luu(robot, dtau, s)
		for i := range quu {
			for j := range quu[i] {
				quu[i][j] += luu[i][j]
			}
		}
	}
}

// Phi sums every component's terminal cost value.
func (c *CostFunction) Phi(robot robotmodel.Model, s *stage.SplitSolution) float64 {
	var total float64
	for _, comp := range c.components {
		total += comp.Phi(robot, s)
	}
	return total
}

// LinearizeTerminal adds every component's terminal gradient/Hessian
// contribution into r and m.
func (c *CostFunction) LinearizeTerminal(robot robotmodel.Model, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) {
	for _, comp := range c.components {
		comp.Phiq(robot, s, r)
		comp.Phiv(robot, s, r)
		comp.Phiqq(robot, s, m)
		comp.Phivv(robot, s, m)
	}
}

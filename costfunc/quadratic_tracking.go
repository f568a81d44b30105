// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package costfunc

import (
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// QuadraticTrackingCost is a diagonal-weight quadratic tracking cost over
// one of q, v, a, u:  l = 0.5 * dtau * w * ||x - xref||^2, contributing
// gradient w*dtau*(x-xref) and Hessian w*dtau*I. This is the rigid-body
// analog of msolid's isotropic linear-elastic stiffness (a diagonal
// modulus contributing quadratic strain energy); see msolid/elasticity.go
// for the additive-contribution idiom this mirrors.
type QuadraticTrackingCost struct {
	Block string // one of "q", "v", "a", "u"
	W     []float64
	Ref   []float64 // reference trajectory value; nil means zero
}

func (c *QuadraticTrackingCost) ref(n int) []float64 {
	if c.Ref == nil {
		return make([]float64, n)
	}
	return c.Ref
}

func (c *QuadraticTrackingCost) vec(s *stage.SplitSolution) []float64 {
	switch c.Block {
	case "q":
		return s.Q
	case "v":
		return s.V
	case "a":
		return s.A
	case "u":
		return s.U
	}
	panic("costfunc: QuadraticTrackingCost: unknown block " + c.Block)
}

func (c *QuadraticTrackingCost) L(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) float64 {
	x := c.vec(s)
	ref := c.ref(len(x))
	var l float64
	for i, xi := range x {
		d := xi - ref[i]
		l += c.W[i] * d * d
	}
	return 0.5 * dtau * l
}

func addGradient(dst []float64, c *QuadraticTrackingCost, dtau float64, s *stage.SplitSolution) {
	x := c.vec(s)
	ref := c.ref(len(x))
	for i, xi := range x {
		dst[i] += dtau * c.W[i] * (xi - ref[i])
	}
}

func (c *QuadraticTrackingCost) Lq(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual) {
	if c.Block == "q" {
		addGradient(r.Lq, c, dtau, s)
	}
}
func (c *QuadraticTrackingCost) Lv(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual) {
	if c.Block == "v" {
		addGradient(r.Lv, c, dtau, s)
	}
}
func (c *QuadraticTrackingCost) La(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual) {
	if c.Block == "a" {
		addGradient(r.La, c, dtau, s)
	}
}
func (c *QuadraticTrackingCost) Lu(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual) {
	if c.Block == "u" {
		addGradient(r.Lu, c, dtau, s)
	}
}
func (c *QuadraticTrackingCost) Lf(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual) {
}

func addDiagHessian(m [][]float64, w []float64, dtau float64) {
	for i := range m {
		m[i][i] += dtau * w[i]
	}
}

func (c *QuadraticTrackingCost) Lqq(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix) {
	if c.Block == "q" {
		addDiagHessian(m.Qqq(), c.W, dtau)
	}
}
func (c *QuadraticTrackingCost) Lvv(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix) {
	if c.Block == "v" {
		addDiagHessian(m.Qvv(), c.W, dtau)
	}
}
func (c *QuadraticTrackingCost) Laa(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix) {
	if c.Block == "a" {
		addDiagHessian(m.Qaa(), c.W, dtau)
	}
}

// Luu returns the dtau-weighted diagonal Hessian w.r.t. u, consumed by
// dynamics.RobotDynamics to condense torque out of the stage (§4.5).
func (c *QuadraticTrackingCost) Luu(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) [][]float64 {
	n := len(s.U)
	quu := make([][]float64, n)
	for i := range quu {
		quu[i] = make([]float64, n)
		if c.Block == "u" {
			quu[i][i] = dtau * c.W[i]
		}
	}
	return quu
}

func (c *QuadraticTrackingCost) Lff(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix) {
}

func (c *QuadraticTrackingCost) Phi(robot robotmodel.Model, s *stage.SplitSolution) float64 {
	if c.Block != "q" && c.Block != "v" {
		return 0
	}
	x := c.vec(s)
	ref := c.ref(len(x))
	var l float64
	for i, xi := range x {
		d := xi - ref[i]
		l += c.W[i] * d * d
	}
	return 0.5 * l
}

func (c *QuadraticTrackingCost) Phiq(robot robotmodel.Model, s *stage.SplitSolution, r *stage.KKTResidual) {
	if c.Block == "q" {
		addGradient(r.Lq, c, 1, s)
	}
}
func (c *QuadraticTrackingCost) Phiv(robot robotmodel.Model, s *stage.SplitSolution, r *stage.KKTResidual) {
	if c.Block == "v" {
		addGradient(r.Lv, c, 1, s)
	}
}
func (c *QuadraticTrackingCost) Phiqq(robot robotmodel.Model, s *stage.SplitSolution, m *stage.KKTMatrix) {
	if c.Block == "q" {
		addDiagHessian(m.Qqq(), c.W, 1)
	}
}
func (c *QuadraticTrackingCost) Phivv(robot robotmodel.Model, s *stage.SplitSolution, m *stage.KKTMatrix) {
	if c.Block == "v" {
		addDiagHessian(m.Qvv(), c.W, 1)
	}
}

var _ Component = (*QuadraticTrackingCost)(nil)

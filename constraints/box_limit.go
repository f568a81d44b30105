// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// boxSign selects whether a BoxLimit enforces x >= bound (Lower) or
// x <= bound (Upper).
type boxSign int

const (
	lowerSign boxSign = 1
	upperSign boxSign = -1
)

// BoxLimit is a one-sided box inequality g(x) = sign*(x - bound) >= 0 over
// a whole vector block (q or v), covering the joint position lower/upper
// and joint velocity lower/upper components. The friction-cone
// and torque components below specialize instead of reusing this type
// because their g(x) is not a simple per-component affine box.
type BoxLimit struct {
	sign  boxSign
	bound []float64
	data  *ComponentData
	block string // "q" or "v"
	barrier float64
	fractionRate float64
}

// NewBoxLimit builds a BoxLimit of dimension len(bound) over the named
// block ("q" or "v"), with sign +1 for a lower bound and -1 for an upper
// bound.
func NewBoxLimit(block string, sign int, bound []float64, barrier, fractionRate float64) *BoxLimit {
	return &BoxLimit{
		sign: boxSign(sign), bound: bound, block: block,
		data: NewComponentData(len(bound)), barrier: barrier, fractionRate: fractionRate,
	}
}

func (b *BoxLimit) Dimc() int             { return len(b.bound) }
func (b *BoxLimit) Data() *ComponentData  { return b.data }

func (b *BoxLimit) vec(s *stage.SplitSolution) []float64 {
	if b.block == "q" {
		return s.Q
	}
	return s.V
}

// g returns the primal inequality value g(x) = sign*(x-bound) for each
// component.
func (b *BoxLimit) g(s *stage.SplitSolution) []float64 {
	x := b.vec(s)
	out := make([]float64, len(x))
	for i := range x {
		out[i] = float64(b.sign) * (x[i] - b.bound[i])
	}
	return out
}

func (b *BoxLimit) IsFeasible(robot robotmodel.Model, s *stage.SplitSolution) bool {
	for _, gi := range b.g(s) {
		if gi < 0 {
			return false
		}
	}
	return true
}

func (b *BoxLimit) SetSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) {
	g := b.g(s)
	for i, gi := range g {
		slack := gi
		if slack < b.barrier {
			slack = b.barrier
		}
		b.data.Slack[i] = slack
	}
	SetSlackAndDualPositive(b.barrier, b.data)
}

// AugmentDualResidual adds -dtau*dual*dg/dx into the gradient block: dg/dx
// = sign (a diagonal Jacobian), so the contribution is -dtau*sign*dual.
func (b *BoxLimit) AugmentDualResidual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual) {
	dst := r.Lq
	if b.block == "v" {
		dst = r.Lv
	}
	for i := range b.data.Dual {
		dst[i] += -dtau * float64(b.sign) * b.data.Dual[i]
	}
}

func (b *BoxLimit) CondenseSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) {
	g := b.g(s)
	for i := range b.data.Slack {
		b.data.Residual[i] = g[i] - b.data.Slack[i]
	}
	ComputeDuality(b.barrier, b.data)

	hess := m.Qqq()
	grad := r.Lq
	if b.block == "v" {
		hess = m.Qvv()
		grad = r.Lv
	}
	for i := range b.data.Slack {
		coeff := dtau * dtau * b.data.Dual[i] / b.data.Slack[i]
		hess[i][i] += coeff // dg/dx = sign, sign^2 = 1
		grad[i] += dtau * float64(b.sign) * (b.data.Dual[i]*b.data.Residual[i] - b.data.Duality[i]) / b.data.Slack[i]
	}
}

func (b *BoxLimit) ComputeSlackAndDualDirection(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, d *stage.SplitDirection) {
	dx := d.Q
	if b.block == "v" {
		dx = d.V
	}
	for i := range b.data.Slack {
		b.data.Dslack[i] = dtau*float64(b.sign)*dx[i] - b.data.Residual[i]
	}
	ComputeDualDirection(b.data)
}

func (b *BoxLimit) ResidualL1Norm() float64 {
	var sum float64
	for i := range b.data.Residual {
		sum += absf(b.data.Residual[i]) + absf(b.data.Duality[i])
	}
	return sum
}

func (b *BoxLimit) SquaredKKTErrorNorm() float64 {
	var sum float64
	for i := range b.data.Residual {
		sum += b.data.Residual[i]*b.data.Residual[i] + b.data.Duality[i]*b.data.Duality[i]
	}
	return sum
}

func (b *BoxLimit) CostBarrier(barrier float64) float64 { return CostBarrier(barrier, b.data.Slack) }

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

var _ Component = (*BoxLimit)(nil)

// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// TorqueBoxLimit enforces sign*(u - bound) >= 0. Unlike BoxLimit, it
// cannot condense directly into KKTMatrix because torque u is eliminated
// from the stage's block matrix before the backward Riccati pass: its
// condensed Hessian contribution lives in Quu and is folded into
// Qqq/Qqa/... by dynamics.RobotDynamics alongside the cost's own Luu,
// not written into m directly.
type TorqueBoxLimit struct {
	sign         boxSign
	bound        []float64
	data         *ComponentData
	barrier      float64
	fractionRate float64
	quu          [][]float64 // condensed Hessian contribution w.r.t. u, nv x nv
}

// NewJointTorqueLowerLimit builds g(u) = u - (-taulim) >= 0.
func NewJointTorqueLowerLimit(robot robotmodel.Model, barrier, fractionRate float64) *TorqueBoxLimit {
	lim := robot.JointEffortLimit()
	bound := make([]float64, len(lim))
	for i, t := range lim {
		bound[i] = -t
	}
	return newTorqueBoxLimit(lowerSign, bound, barrier, fractionRate)
}

// NewJointTorqueUpperLimit builds g(u) = taulim - u >= 0.
func NewJointTorqueUpperLimit(robot robotmodel.Model, barrier, fractionRate float64) *TorqueBoxLimit {
	return newTorqueBoxLimit(upperSign, robot.JointEffortLimit(), barrier, fractionRate)
}

func newTorqueBoxLimit(sign boxSign, bound []float64, barrier, fractionRate float64) *TorqueBoxLimit {
	n := len(bound)
	quu := make([][]float64, n)
	for i := range quu {
		quu[i] = make([]float64, n)
	}
	return &TorqueBoxLimit{sign: sign, bound: bound, data: NewComponentData(n), barrier: barrier, fractionRate: fractionRate, quu: quu}
}

func (t *TorqueBoxLimit) Dimc() int            { return len(t.bound) }
func (t *TorqueBoxLimit) Data() *ComponentData { return t.data }

// Quu returns the condensed Hessian contribution w.r.t. u, to be added by
// dynamics.RobotDynamics alongside the cost's Luu before condensation.
func (t *TorqueBoxLimit) Quu() [][]float64 { return t.quu }

func (t *TorqueBoxLimit) g(s *stage.SplitSolution) []float64 {
	out := make([]float64, len(t.bound))
	for i, u := range s.U {
		out[i] = float64(t.sign) * (u - t.bound[i])
	}
	return out
}

func (t *TorqueBoxLimit) IsFeasible(robot robotmodel.Model, s *stage.SplitSolution) bool {
	for _, gi := range t.g(s) {
		if gi < 0 {
			return false
		}
	}
	return true
}

func (t *TorqueBoxLimit) SetSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) {
	for i, gi := range t.g(s) {
		slack := gi
		if slack < t.barrier {
			slack = t.barrier
		}
		t.data.Slack[i] = slack
	}
	SetSlackAndDualPositive(t.barrier, t.data)
}

func (t *TorqueBoxLimit) AugmentDualResidual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual) {
	for i := range t.data.Dual {
		r.Lu[i] += -dtau * float64(t.sign) * t.data.Dual[i]
	}
}

func (t *TorqueBoxLimit) CondenseSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) {
	g := t.g(s)
	for i := range t.data.Slack {
		t.data.Residual[i] = g[i] - t.data.Slack[i]
	}
	ComputeDuality(t.barrier, t.data)
	for i := range t.quu {
		for j := range t.quu[i] {
			t.quu[i][j] = 0
		}
	}
	for i := range t.data.Slack {
		t.quu[i][i] += dtau * dtau * t.data.Dual[i] / t.data.Slack[i]
		r.Lu[i] += dtau * float64(t.sign) * (t.data.Dual[i]*t.data.Residual[i] - t.data.Duality[i]) / t.data.Slack[i]
	}
}

func (t *TorqueBoxLimit) ComputeSlackAndDualDirection(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, d *stage.SplitDirection) {
	for i := range t.data.Slack {
		t.data.Dslack[i] = dtau*float64(t.sign)*d.U[i] - t.data.Residual[i]
	}
	ComputeDualDirection(t.data)
}

func (t *TorqueBoxLimit) ResidualL1Norm() float64 {
	var sum float64
	for i := range t.data.Residual {
		sum += absf(t.data.Residual[i]) + absf(t.data.Duality[i])
	}
	return sum
}

func (t *TorqueBoxLimit) SquaredKKTErrorNorm() float64 {
	var sum float64
	for i := range t.data.Residual {
		sum += t.data.Residual[i]*t.data.Residual[i] + t.data.Duality[i]*t.data.Duality[i]
	}
	return sum
}

func (t *TorqueBoxLimit) CostBarrier(barrier float64) float64 { return CostBarrier(barrier, t.data.Slack) }

var _ Component = (*TorqueBoxLimit)(nil)

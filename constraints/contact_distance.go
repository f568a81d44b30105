// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// ContactDistance enforces g(q) = distance-to-surface(q) >= 0 for every
// active point contact.
// Its Jacobian dg/dq comes from robotmodel.Model.ContactDistanceJacobian.
type ContactDistance struct {
	barrier      float64
	fractionRate float64
	numContacts  int
	nv           int
	data         *ComponentData
	distance     []float64   // scratch, capacity maxContacts
	jac          [][]float64 // scratch, capacity maxContacts x nv
}

// NewContactDistance builds a ContactDistance sized for up to maxContacts
// active point contacts over a robot with nv velocity coordinates.
func NewContactDistance(barrier, fractionRate float64, maxContacts, nv int) *ContactDistance {
	jac := make([][]float64, maxContacts)
	for i := range jac {
		jac[i] = make([]float64, nv)
	}
	return &ContactDistance{barrier: barrier, fractionRate: fractionRate, nv: nv,
		data: NewComponentData(maxContacts), distance: make([]float64, maxContacts), jac: jac}
}

// Resize rebinds the logical dimension to the current active-contact count.
func (c *ContactDistance) Resize(numActiveContacts int) { c.numContacts = numActiveContacts }

func (c *ContactDistance) Dimc() int { return c.numContacts }

func (c *ContactDistance) dataView() *ComponentData {
	n := c.Dimc()
	return &ComponentData{
		Slack: c.data.Slack[:n], Dual: c.data.Dual[:n],
		Dslack: c.data.Dslack[:n], Ddual: c.data.Ddual[:n],
		Residual: c.data.Residual[:n], Duality: c.data.Duality[:n],
	}
}

func (c *ContactDistance) Data() *ComponentData { return c.dataView() }

func (c *ContactDistance) g(robot robotmodel.Model) []float64 {
	robot.ContactDistance(c.distance[:c.numContacts])
	return c.distance[:c.numContacts]
}

func (c *ContactDistance) IsFeasible(robot robotmodel.Model, s *stage.SplitSolution) bool {
	for _, gi := range c.g(robot) {
		if gi < 0 {
			return false
		}
	}
	return true
}

func (c *ContactDistance) SetSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) {
	data := c.dataView()
	for i, gi := range c.g(robot) {
		slack := gi
		if slack < c.barrier {
			slack = c.barrier
		}
		data.Slack[i] = slack
	}
	SetSlackAndDualPositive(c.barrier, data)
}

func (c *ContactDistance) refreshJacobian(robot robotmodel.Model) [][]float64 {
	view := c.jac[:c.numContacts]
	robot.ContactDistanceJacobian(view)
	return view
}

func (c *ContactDistance) AugmentDualResidual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual) {
	data := c.dataView()
	dgdq := c.refreshJacobian(robot)
	for i := 0; i < c.numContacts; i++ {
		for j := 0; j < c.nv; j++ {
			r.Lq[j] += -dtau * dgdq[i][j] * data.Dual[i]
		}
	}
}

func (c *ContactDistance) CondenseSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) {
	data := c.dataView()
	g := c.g(robot)
	for i := range data.Slack {
		data.Residual[i] = g[i] - data.Slack[i]
	}
	ComputeDuality(c.barrier, data)

	dgdq := c.refreshJacobian(robot)
	qqq := m.Qqq()
	for i := 0; i < c.numContacts; i++ {
		coeff := dtau * dtau * data.Dual[i] / data.Slack[i]
		grad := dtau * (data.Dual[i]*data.Residual[i] - data.Duality[i]) / data.Slack[i]
		for a := 0; a < c.nv; a++ {
			r.Lq[a] += grad * dgdq[i][a]
			for b := 0; b < c.nv; b++ {
				qqq[a][b] += coeff * dgdq[i][a] * dgdq[i][b]
			}
		}
	}
}

func (c *ContactDistance) ComputeSlackAndDualDirection(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, d *stage.SplitDirection) {
	data := c.dataView()
	dgdq := c.refreshJacobian(robot)
	for i := 0; i < c.numContacts; i++ {
		var dg float64
		for a := 0; a < c.nv; a++ {
			dg += dgdq[i][a] * d.Q[a]
		}
		data.Dslack[i] = dtau*dg - data.Residual[i]
	}
	ComputeDualDirection(data)
}

func (c *ContactDistance) ResidualL1Norm() float64 {
	data := c.dataView()
	var sum float64
	for i := range data.Residual {
		sum += absf(data.Residual[i]) + absf(data.Duality[i])
	}
	return sum
}

func (c *ContactDistance) SquaredKKTErrorNorm() float64 {
	data := c.dataView()
	var sum float64
	for i := range data.Residual {
		sum += data.Residual[i]*data.Residual[i] + data.Duality[i]*data.Duality[i]
	}
	return sum
}

func (c *ContactDistance) CostBarrier(barrier float64) float64 {
	return CostBarrier(barrier, c.dataView().Slack)
}

var _ Component = (*ContactDistance)(nil)

// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// FrictionCone is a linearized (pyramidal) friction-cone constraint on the
// packed active contact forces: for each active contact with force
// (fx, fy, fz), four half-plane inequalities
//   mu*fz - fx >= 0,  mu*fz + fx >= 0,  mu*fz - fy >= 0,  mu*fz + fy >= 0
// approximate the circular friction cone, the standard linearization.
// dimc = 4 * (dimf/3); its Jacobian rows are
// constant (independent of s), so g(x) is recomputed directly from
// s.Fview() each call rather than cached.
type FrictionCone struct {
	mu           float64
	barrier      float64
	fractionRate float64
	numContacts  int
	data         *ComponentData
}

// NewFrictionCone builds a FrictionCone sized for up to maxContacts active
// point contacts (dimc tracks the active count via Resize).
func NewFrictionCone(mu, barrier, fractionRate float64, maxContacts int) *FrictionCone {
	return &FrictionCone{mu: mu, barrier: barrier, fractionRate: fractionRate,
		data: NewComponentData(4 * maxContacts)}
}

// Resize rebinds the logical dimension to the current number of active
// contacts (dimf/3), without reallocating the backing ComponentData
// slices, mirroring stage.SplitSolution.SetContactStatus.
func (f *FrictionCone) Resize(numActiveContacts int) {
	f.numContacts = numActiveContacts
}

func (f *FrictionCone) Dimc() int { return 4 * f.numContacts }

func (f *FrictionCone) dataView() *ComponentData {
	n := f.Dimc()
	return &ComponentData{
		Slack: f.data.Slack[:n], Dual: f.data.Dual[:n],
		Dslack: f.data.Dslack[:n], Ddual: f.data.Ddual[:n],
		Residual: f.data.Residual[:n], Duality: f.data.Duality[:n],
	}
}

func (f *FrictionCone) Data() *ComponentData { return f.dataView() }

// coneCoeffs returns the 3 coefficients (cx, cy, cz) of row r within a
// contact: row 0: mu*fz - fx, row 1: mu*fz + fx, row 2: mu*fz - fy, row 3: mu*fz + fy.
func coneCoeffs(row int, mu float64) (cx, cy, cz float64) {
	switch row {
	case 0:
		return -1, 0, mu
	case 1:
		return 1, 0, mu
	case 2:
		return 0, -1, mu
	default:
		return 0, 1, mu
	}
}

func (f *FrictionCone) g(s *stage.SplitSolution) []float64 {
	fv := s.Fview()
	out := make([]float64, f.Dimc())
	for c := 0; c < f.numContacts; c++ {
		fx, fy, fz := fv[3*c], fv[3*c+1], fv[3*c+2]
		for row := 0; row < 4; row++ {
			cx, cy, cz := coneCoeffs(row, f.mu)
			out[4*c+row] = cx*fx + cy*fy + cz*fz
		}
	}
	return out
}

func (f *FrictionCone) IsFeasible(robot robotmodel.Model, s *stage.SplitSolution) bool {
	for _, gi := range f.g(s) {
		if gi < 0 {
			return false
		}
	}
	return true
}

func (f *FrictionCone) SetSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) {
	data := f.dataView()
	for i, gi := range f.g(s) {
		slack := gi
		if slack < f.barrier {
			slack = f.barrier
		}
		data.Slack[i] = slack
	}
	SetSlackAndDualPositive(f.barrier, data)
}

func (f *FrictionCone) AugmentDualResidual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual) {
	data := f.dataView()
	lf := r.Lf()
	for c := 0; c < f.numContacts; c++ {
		for row := 0; row < 4; row++ {
			cx, cy, cz := coneCoeffs(row, f.mu)
			dual := data.Dual[4*c+row]
			lf[3*c+0] += -dtau * cx * dual
			lf[3*c+1] += -dtau * cy * dual
			lf[3*c+2] += -dtau * cz * dual
		}
	}
}

func (f *FrictionCone) CondenseSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) {
	data := f.dataView()
	g := f.g(s)
	for i := range data.Slack {
		data.Residual[i] = g[i] - data.Slack[i]
	}
	ComputeDuality(f.barrier, data)

	qff := m.Qff()
	lf := r.Lf()
	for c := 0; c < f.numContacts; c++ {
		for row := 0; row < 4; row++ {
			idx := 4*c + row
			cx, cy, cz := coneCoeffs(row, f.mu)
			coeff := dtau * dtau * data.Dual[idx] / data.Slack[idx]
			coeffs := [3]float64{cx, cy, cz}
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					qff[3*c+a][3*c+b] += coeff * coeffs[a] * coeffs[b]
				}
			}
			grad := dtau * (data.Dual[idx]*data.Residual[idx] - data.Duality[idx]) / data.Slack[idx]
			lf[3*c+0] += grad * cx
			lf[3*c+1] += grad * cy
			lf[3*c+2] += grad * cz
		}
	}
}

func (f *FrictionCone) ComputeSlackAndDualDirection(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, d *stage.SplitDirection) {
	data := f.dataView()
	dfv := d.Fview()
	for c := 0; c < f.numContacts; c++ {
		dfx, dfy, dfz := dfv[3*c], dfv[3*c+1], dfv[3*c+2]
		for row := 0; row < 4; row++ {
			idx := 4*c + row
			cx, cy, cz := coneCoeffs(row, f.mu)
			dg := cx*dfx + cy*dfy + cz*dfz
			data.Dslack[idx] = dtau*dg - data.Residual[idx]
		}
	}
	ComputeDualDirection(data)
}

func (f *FrictionCone) ResidualL1Norm() float64 {
	data := f.dataView()
	var sum float64
	for i := range data.Residual {
		sum += absf(data.Residual[i]) + absf(data.Duality[i])
	}
	return sum
}

func (f *FrictionCone) SquaredKKTErrorNorm() float64 {
	data := f.dataView()
	var sum float64
	for i := range data.Residual {
		sum += data.Residual[i]*data.Residual[i] + data.Duality[i]*data.Duality[i]
	}
	return sum
}

func (f *FrictionCone) CostBarrier(barrier float64) float64 {
	return CostBarrier(barrier, f.dataView().Slack)
}

var _ Component = (*FrictionCone)(nil)

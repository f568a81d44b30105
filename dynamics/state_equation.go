// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dynamics implements the discrete-time state equation and the
// inverse-dynamics/torque-condensation glue (RobotDynamics), the rigid-body
// analog of fem/s_linimp.go's star-variable update and leobcn-gofem's
// Newmark-type sol-lin-implicit.go.
package dynamics

import (
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// StateEquation linearizes the discrete-time dynamics residual on the
// configuration Lie group, forward-Euler and backward-Euler variants.
type StateEquation struct{}

// Forward computes the forward-Euler residual at stage t, given this
// stage's solution s and the next stage's solution sNext, adding into r.
func (StateEquation) Forward(robot robotmodel.Model, dtau float64, s, sNext *stage.SplitSolution, r *stage.KKTResidual) {
	diff := robot.SubtractConfiguration(s.Q, sNext.Q)
	for i := range r.Fq {
		r.Fq[i] += diff[i] + dtau*s.V[i]
	}
	for i := range r.Fv {
		r.Fv[i] += s.V[i] - sNext.V[i] + dtau*s.A[i]
	}
}

// ForwardAdjoint adds this stage's adjoint gradient contribution from the
// forward-Euler residual.
func (StateEquation) ForwardAdjoint(s, sNext *stage.SplitSolution, dtau float64, r *stage.KKTResidual) {
	for i := range r.Lq {
		r.Lq[i] += sNext.Lmd[i] - s.Lmd[i]
	}
	for i := range r.Lv {
		r.Lv[i] += dtau*sNext.Lmd[i] + sNext.Gmm[i] - s.Gmm[i]
	}
	for i := range r.La {
		r.La[i] += dtau * sNext.Gmm[i]
	}
}

// ForwardJacobians populates Fqq, Fqv on the manifold at stage t.
func (StateEquation) ForwardJacobians(robot robotmodel.Model, dtau float64, s, sNext *stage.SplitSolution, m *stage.KKTMatrix) {
	dSubdQA, dSubdQB := robot.SubtractConfigurationJacobians(s.Q, sNext.Q)
	dIntdQ, dIntdV := robot.IntegrateConfigurationJacobians(s.Q, s.V, dtau)

	fqq, fqv := m.Fqq(), m.Fqv()
	nv := len(fqq)
	for i := 0; i < nv; i++ {
		for j := 0; j < nv; j++ {
			// d(q ⊖ q_next)/dq = dSubdQA + dSubdQB * dIntdQ (chain rule
			// through q_next = integrate(q, v, dtau)).
			var chain float64
			for k := 0; k < nv; k++ {
				chain += dSubdQB[i][k] * dIntdQ[k][j]
			}
			fqq[i][j] = dSubdQA[i][j] + chain
		}
	}
	for i := 0; i < nv; i++ {
		for j := 0; j < nv; j++ {
			var chain float64
			for k := 0; k < nv; k++ {
				chain += dSubdQB[i][k] * dIntdV[k][j]
			}
			fqv[i][j] = chain
			if i == j {
				fqv[i][j] += dtau
			}
		}
	}
}

// Backward computes the backward-Euler residual at stage t, given the
// previous stage's solution sPrev and this stage's solution s.
func (StateEquation) Backward(robot robotmodel.Model, dtau float64, sPrev, s *stage.SplitSolution, r *stage.KKTResidual) {
	diff := robot.SubtractConfiguration(sPrev.Q, s.Q)
	for i := range r.Fq {
		r.Fq[i] += diff[i] + dtau*s.V[i]
	}
	for i := range r.Fv {
		r.Fv[i] += sPrev.V[i] - s.V[i] + dtau*s.A[i]
	}
}

// BackwardAdjoint adds this stage's adjoint gradient contribution from the
// backward-Euler residual. sNext is nil at the terminal stage, which uses
// no λ_next.
func (StateEquation) BackwardAdjoint(robot robotmodel.Model, dtau float64, sPrev, s, sNext *stage.SplitSolution, r *stage.KKTResidual) {
	_, dSubdQB := robot.SubtractConfigurationJacobians(sPrev.Q, s.Q)
	nv := len(s.V)
	lmdSum := make([]float64, nv)
	copy(lmdSum, s.Lmd)
	if sNext != nil {
		for i := range lmdSum {
			lmdSum[i] += sNext.Lmd[i]
		}
	}
	for i := 0; i < nv; i++ {
		var acc float64
		for k := 0; k < nv; k++ {
			acc += dSubdQB[k][i] * lmdSum[k] // J_minus^T * (λ + λ_next)
		}
		r.Lq[i] += acc
	}
	for i := range r.Lv {
		r.Lv[i] += dtau*s.Lmd[i] - s.Gmm[i]
		if sNext != nil {
			r.Lv[i] += sNext.Gmm[i]
		}
	}
	for i := range r.La {
		r.La[i] += dtau * s.Gmm[i]
	}
}

// BackwardJacobians populates Fqq, Fqv for the backward-Euler residual.
// Unlike the forward variant, Backward's residual is a direct subtract
// (no integrate composition), so Fqq is just dSubtract/dqB and Fqv is
// dtau*I.
func (StateEquation) BackwardJacobians(robot robotmodel.Model, dtau float64, sPrev, s *stage.SplitSolution, m *stage.KKTMatrix) {
	_, dSubdQB := robot.SubtractConfigurationJacobians(sPrev.Q, s.Q)

	fqq, fqv := m.Fqq(), m.Fqv()
	nv := len(fqq)
	for i := 0; i < nv; i++ {
		for j := 0; j < nv; j++ {
			fqq[i][j] = dSubdQB[i][j]
			fqv[i][j] = 0
		}
		fqv[i][i] = dtau
	}
}

// ViolationL1Norm is re-exported from stage for callers that only import
// dynamics; it returns ‖Fq‖₁ + ‖Fv‖₁.
func ViolationL1Norm(fq, fv []float64) float64 { return stage.ViolationL1Norm(fq, fv) }

// SubtractOverDt recovers v to first order from subtract(integrate(q, v,
// dt), q) / dt, a round-trip identity check. Test-only helper.
func SubtractOverDt(robot robotmodel.Model, q, v []float64, dt float64) []float64 {
	qNext := robot.IntegrateConfiguration(q, v, dt)
	diff := robot.SubtractConfiguration(qNext, q)
	out := make([]float64, len(diff))
	for i := range diff {
		out[i] = diff[i] / dt
	}
	return out
}

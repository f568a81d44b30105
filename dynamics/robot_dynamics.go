// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamics

import (
	"github.com/cpmech/gosl/la"
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// RobotDynamics computes the inverse-dynamics residual, condenses torque
// out of the stage via the cost/constraint Hessian w.r.t. u, adds the
// floating-base underactuation and contact-acceleration equality rows, and
// recovers the post-Riccati torque feedback gain. Grounded on
// `fem/s_linimp.go`'s star-variable condensation, generalized from a
// linear constitutive update to a nonlinear inverse-dynamics one
// re-linearized every iteration.
type RobotDynamics struct {
	nv, np, maxDimf int

	tauRNEA                  []float64   // scratch, size nv
	dTauDq, dTauDv, dTauDa   [][]float64 // nv x nv
	dTauDf                   [][]float64 // nv x maxDimf

	h            []float64   // contact-acceleration equality residual, capacity maxDimf
	dhdq, dhdv, dhda [][]float64 // capacity maxDimf x nv
}

// NewRobotDynamics allocates a RobotDynamics for robot's dimensions.
func NewRobotDynamics(robot robotmodel.Model) *RobotDynamics {
	nv, np := robot.Dimv(), robot.DimPassive()
	maxDimf := 3 * robot.MaxPointContacts()
	return &RobotDynamics{
		nv: nv, np: np, maxDimf: maxDimf,
		tauRNEA: make([]float64, nv),
		dTauDq: la.MatAlloc(nv, nv), dTauDv: la.MatAlloc(nv, nv), dTauDa: la.MatAlloc(nv, nv),
		dTauDf: la.MatAlloc(nv, maxDimf),
		h:      make([]float64, maxDimf),
		dhdq:   la.MatAlloc(maxDimf, nv), dhdv: la.MatAlloc(maxDimf, nv), dhda: la.MatAlloc(maxDimf, nv),
	}
}

func colView(full [][]float64, cols int) [][]float64 {
	out := make([][]float64, len(full))
	for i := range full {
		out[i] = full[i][:cols]
	}
	return out
}

// ComputeResidual sets r.Ures = u − RNEA(q,v,a,f), the inverse-dynamics
// residual.
func (d *RobotDynamics) ComputeResidual(robot robotmodel.Model, s *stage.SplitSolution, r *stage.KKTResidual) {
	robot.SetContactForces(s.Fview())
	robot.RNEA(s.Q, s.V, s.A, d.tauRNEA)
	for i := range r.Ures {
		r.Ures[i] = s.U[i] - d.tauRNEA[i]
	}
}

// ComputeJacobians refreshes the stored inverse-dynamics Jacobians for the
// current (q, v, a, f) iterate; must be called before Condense,
// CondenseEquality, or StateFeedbackGain.
func (d *RobotDynamics) ComputeJacobians(robot robotmodel.Model, s *stage.SplitSolution) {
	robot.SetContactForces(s.Fview())
	robot.RNEA(s.Q, s.V, s.A, d.tauRNEA)
	robot.RNEADerivatives(s.Q, s.V, s.A, d.dTauDq, d.dTauDv, d.dTauDa)
	robot.DRNEAPartialDFext(colView(d.dTauDf, s.Dimf()))
}

// CondenseEquality populates the floating-base underactuation rows
// (passive-DoF torque must be zero) and the contact-acceleration equality
// rows of C/Cq/Cv/Ca/Cf. These use the Baumgarte-stabilized contact
// acceleration as a hard equality (all 3 components per active contact,
// unlike constraints.ContactComplementarity's relaxed single-component
// inequality on the same underlying robot operation); dhdq/dhdv/dhda are
// refreshed here at the full dimf width rather than reused from
// ComputeJacobians.
func (d *RobotDynamics) CondenseEquality(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) {
	dimf := s.Dimf()
	c := r.C()
	cq, cv, ca, cf := m.Cq(), m.Cv(), m.Ca(), m.Cf()

	for i := 0; i < d.np; i++ {
		c[i] = dtau * d.tauRNEA[i]
		copy(cq[i], d.dTauDq[i][:d.nv])
		copy(cv[i], d.dTauDv[i][:d.nv])
		copy(ca[i], d.dTauDa[i][:d.nv])
		copy(cf[i], d.dTauDf[i][:dimf])
	}

	hview := d.h[:dimf]
	robot.ComputeBaumgarteResidual(hview)
	dhdq, dhdv, dhda := colView(d.dhdq, d.nv)[:dimf], colView(d.dhdv, d.nv)[:dimf], colView(d.dhda, d.nv)[:dimf]
	robot.ComputeBaumgarteDerivatives(dhdq, dhdv, dhda)
	for i := 0; i < dimf; i++ {
		row := d.np + i
		c[row] = hview[i]
		copy(cq[row], dhdq[i])
		copy(cv[row], dhdv[i])
		copy(ca[row], dhda[i])
	}
}

// Condense folds the accumulated torque gradient (r.Lu, populated by
// CostFunction.Linearize and every TorqueBoxLimit) and the accumulated
// torque Hessian quuTotal (CostFunction.Quu plus every TorqueBoxLimit.Quu,
// summed by the caller) into the q/v/a/f blocks via the chain rule through
// u = RNEA(q,v,a,f).
func (d *RobotDynamics) Condense(s *stage.SplitSolution, quuTotal [][]float64, m *stage.KKTMatrix, r *stage.KKTResidual) {
	dimf := s.Dimf()
	dTauDf := colView(d.dTauDf, dimf)

	foldHessian(m.Qqq(), d.dTauDq, quuTotal, d.dTauDq)
	foldHessian(m.Qvv(), d.dTauDv, quuTotal, d.dTauDv)
	foldHessian(m.Qaa(), d.dTauDa, quuTotal, d.dTauDa)
	foldHessian(m.Qqa(), d.dTauDq, quuTotal, d.dTauDa)
	foldHessian(m.Qva(), d.dTauDv, quuTotal, d.dTauDa)
	foldHessian(m.Qqf(), d.dTauDq, quuTotal, dTauDf)
	foldHessian(m.Qvf(), d.dTauDv, quuTotal, dTauDf)
	foldHessian(m.Qaf(), d.dTauDa, quuTotal, dTauDf)
	foldHessian(m.Qff(), dTauDf, quuTotal, dTauDf)

	foldGradient(r.Lq, d.dTauDq, r.Lu)
	foldGradient(r.Lv, d.dTauDv, r.Lu)
	foldGradient(r.La, d.dTauDa, r.Lu)
	foldGradient(r.Lf(), dTauDf, r.Lu)
}

// foldHessian adds A^T * Q * B into dst, where A and B share Q's row count
// (nv) and dst is sized A's-column-count x B's-column-count.
func foldHessian(dst, A, Q, B [][]float64) {
	dimX := len(dst)
	if dimX == 0 {
		return
	}
	dimY := len(dst[0])
	nv := len(A)
	for i := 0; i < dimX; i++ {
		for j := 0; j < dimY; j++ {
			var acc float64
			for k := 0; k < nv; k++ {
				var qb float64
				for l := 0; l < nv; l++ {
					qb += Q[k][l] * B[l][j]
				}
				acc += A[k][i] * qb
			}
			dst[i][j] += acc
		}
	}
}

// foldGradient adds A^T * lu into dst.
func foldGradient(dst []float64, A [][]float64, lu []float64) {
	nv := len(A)
	for i := range dst {
		var acc float64
		for k := 0; k < nv; k++ {
			acc += A[k][i] * lu[k]
		}
		dst[i] += acc
	}
}

// TorqueDirection evaluates the first-order torque step consistent with
// u = RNEA(q,v,a,f), du = dTau/dq*dq + dTau/dv*dv + dTau/da*da + dTau/df*df,
// given the already-recovered (da, df) from the same stage's Gain.Direction.
// Used by the forward recovery pass to fill in d.U, which
// constraints.TorqueBoxLimit.ComputeSlackAndDualDirection reads directly
// since u is condensed out of the stage's own block matrix.
func (d *RobotDynamics) TorqueDirection(dq, dv, da, df []float64) []float64 {
	dimf := len(df)
	dTauDf := colView(d.dTauDf, dimf)
	du := make([]float64, d.nv)
	for i := 0; i < d.nv; i++ {
		var acc float64
		for j := 0; j < d.nv; j++ {
			acc += d.dTauDq[i][j]*dq[j] + d.dTauDv[i][j]*dv[j] + d.dTauDa[i][j]*da[j]
		}
		for j := 0; j < dimf; j++ {
			acc += dTauDf[i][j] * df[j]
		}
		du[i] = acc
	}
	return du
}

// StateFeedbackGain recovers the post-Riccati torque feedback gains
// Kuq = du/dq + du/da·Kaq + du/df·Kfq (and the analogous Kuv), ported from
// original_source/include/idocp/ocp/robot_dynamics.hpp's
// getStateFeedbackGain.
func (d *RobotDynamics) StateFeedbackGain(dimf int, Kaq, Kav, Kfq, Kfv [][]float64) (Kuq, Kuv [][]float64) {
	dTauDf := colView(d.dTauDf, dimf)
	Kuq = addMats(d.dTauDq, matMul(d.dTauDa, Kaq), matMul(dTauDf, Kfq))
	Kuv = addMats(d.dTauDv, matMul(d.dTauDa, Kav), matMul(dTauDf, Kfv))
	return
}

func matMul(A, B [][]float64) [][]float64 {
	rows := len(A)
	if rows == 0 {
		return nil
	}
	inner := len(A[0])
	cols := 0
	if len(B) > 0 {
		cols = len(B[0])
	}
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			var acc float64
			for k := 0; k < inner; k++ {
				acc += A[i][k] * B[k][j]
			}
			out[i][j] = acc
		}
	}
	return out
}

func addMats(mats ...[][]float64) [][]float64 {
	rows := len(mats[0])
	cols := 0
	if rows > 0 {
		cols = len(mats[0][0])
	}
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		for _, m := range mats {
			for j := 0; j < cols; j++ {
				out[i][j] += m[i][j]
			}
		}
	}
	return out
}

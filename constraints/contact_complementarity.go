// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"github.com/cpmech/gosl/la"
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// ContactComplementarity couples, per active point contact, the
// non-negativity of the contact normal force (slack s_g, dual z_g) with
// the non-negativity of the Baumgarte-stabilized contact acceleration
// residual (slack s_h, dual z_h) through a third complementarity slack
// s_w bounded by s_g*s_h + s_w = epsilon (the maximum admissible
// complementarity violation). A feasible contact mode never has both the
// force driven to zero (separating) and a nonzero stabilized acceleration
// gap large enough to push the product past epsilon. Condensation folds
// s_w's dual into the force and baumgarte blocks, producing a genuine
// 3x3 mixed Hessian (g_ss, g_st, g_tt below) rather than two independent
// diagonal PDIP blocks; see original_source/include/idocp/complementarity
// /contact_complementarity.hxx's condenseSlackAndDual.
//
// original_source's condensed_force_residual_ derivation drops the
// "- force_data_.duality/force_data_.slack" term that its own
// condensed_baumgarte_residual_ carries (a stray terminating semicolon in
// the C++ cuts the expression short); treated here as a transcription
// bug and both condensed residuals below are written symmetrically.
type ContactComplementarity struct {
	barrier      float64
	fractionRate float64
	epsilon      float64 // max_complementarity_violation
	nv           int
	numContacts  int

	force           *ComponentData // dimension numContacts, fz_c >= 0 (s_g, z_g)
	baumgarte       *ComponentData // dimension numContacts, h_c >= 0 (s_h, z_h)
	complementarity *ComponentData // dimension numContacts, s_w = epsilon - s_g*s_h

	h    []float64   // scratch, capacity maxContacts
	dhdq [][]float64 // scratch, capacity maxContacts x nv
	dhdv [][]float64
	dhda [][]float64

	// condensation scratch, capacity maxContacts; populated by
	// CondenseSlackAndDual and read back by ComputeSlackAndDualDirection.
	sg, sh, gw, gss, gst, gtt                           []float64
	condensedForceResidual, condensedBaumgarteResidual  []float64

	merged *ComponentData // capacity 3*maxContacts, refreshed by Data()
}

// NewContactComplementarity builds a ContactComplementarity sized for up
// to maxContacts active point contacts over a robot with nv velocity
// coordinates. epsilon is the maximum admissible complementarity
// violation s_g*s_h (typically a small positive number, decayed toward 0
// alongside the barrier parameter).
func NewContactComplementarity(barrier, fractionRate, epsilon float64, maxContacts, nv int) *ContactComplementarity {
	return &ContactComplementarity{
		barrier: barrier, fractionRate: fractionRate, epsilon: epsilon, nv: nv,
		force:           NewComponentData(maxContacts),
		baumgarte:       NewComponentData(maxContacts),
		complementarity: NewComponentData(maxContacts),
		h:               make([]float64, maxContacts),
		dhdq:            la.MatAlloc(maxContacts, nv), dhdv: la.MatAlloc(maxContacts, nv), dhda: la.MatAlloc(maxContacts, nv),
		sg: make([]float64, maxContacts), sh: make([]float64, maxContacts), gw: make([]float64, maxContacts),
		gss: make([]float64, maxContacts), gst: make([]float64, maxContacts), gtt: make([]float64, maxContacts),
		condensedForceResidual: make([]float64, maxContacts), condensedBaumgarteResidual: make([]float64, maxContacts),
		merged: NewComponentData(3 * maxContacts),
	}
}

// Resize rebinds the logical dimension to the current active-contact count.
func (c *ContactComplementarity) Resize(numActiveContacts int) { c.numContacts = numActiveContacts }

func (c *ContactComplementarity) Dimc() int { return 3 * c.numContacts }

func (c *ContactComplementarity) forceView() *ComponentData { return view3(c.force, c.numContacts) }
func (c *ContactComplementarity) baumgarteView() *ComponentData {
	return view3(c.baumgarte, c.numContacts)
}
func (c *ContactComplementarity) complementarityView() *ComponentData {
	return view3(c.complementarity, c.numContacts)
}

func view3(d *ComponentData, n int) *ComponentData {
	return &ComponentData{
		Slack: d.Slack[:n], Dual: d.Dual[:n],
		Dslack: d.Dslack[:n], Ddual: d.Ddual[:n],
		Residual: d.Residual[:n], Duality: d.Duality[:n],
	}
}

// Data returns a merged view spanning force, baumgarte, and
// complementarity slack/dual data, concatenated in that order, so the
// generic Constraints stack's fraction-to-boundary and positivity checks
// (which only ever call Data()) see all three coupled blocks, not just
// the force half.
func (c *ContactComplementarity) Data() *ComponentData {
	n := c.numContacts
	force, baumgarte, comp := c.forceView(), c.baumgarteView(), c.complementarityView()
	for i := 0; i < n; i++ {
		copyComponent(c.merged, i, force, i)
		copyComponent(c.merged, n+i, baumgarte, i)
		copyComponent(c.merged, 2*n+i, comp, i)
	}
	return view3(c.merged, 3*n)
}

func copyComponent(dst *ComponentData, di int, src *ComponentData, si int) {
	dst.Slack[di], dst.Dual[di] = src.Slack[si], src.Dual[si]
	dst.Dslack[di], dst.Ddual[di] = src.Dslack[si], src.Ddual[si]
	dst.Residual[di], dst.Duality[di] = src.Residual[si], src.Duality[si]
}

// BaumgarteData returns the baumgarte half's slack/dual data.
func (c *ContactComplementarity) BaumgarteData() *ComponentData { return c.baumgarteView() }

// ComplementarityData returns the s_w slack/dual data.
func (c *ContactComplementarity) ComplementarityData() *ComponentData { return c.complementarityView() }

func (c *ContactComplementarity) fz(s *stage.SplitSolution) []float64 {
	fv := s.Fview()
	out := make([]float64, c.numContacts)
	for i := 0; i < c.numContacts; i++ {
		out[i] = fv[3*i+2]
	}
	return out
}

func (c *ContactComplementarity) refreshBaumgarte(robot robotmodel.Model) []float64 {
	view := c.h[:c.numContacts]
	robot.ComputeBaumgarteResidual(view)
	return view
}

func (c *ContactComplementarity) refreshBaumgarteJacobians(robot robotmodel.Model) (dq, dv, da [][]float64) {
	dq = c.dhdq[:c.numContacts]
	dv = c.dhdv[:c.numContacts]
	da = c.dhda[:c.numContacts]
	robot.ComputeBaumgarteDerivatives(dq, dv, da)
	return
}

func (c *ContactComplementarity) IsFeasible(robot robotmodel.Model, s *stage.SplitSolution) bool {
	for _, fz := range c.fz(s) {
		if fz < 0 {
			return false
		}
	}
	for _, hi := range c.refreshBaumgarte(robot) {
		if hi < 0 {
			return false
		}
	}
	return true
}

// SetSlackAndDual lifts the force and baumgarte slacks independently,
// derives the complementarity slack s_w = epsilon - s_g*s_h (lifted the
// same way), then overwrites the force and baumgarte duals to the
// coupled values z_g = barrier/s_g - s_h*z_w and z_h = barrier/s_h -
// s_g*z_w, each re-lifted above barrier exactly like
// SetSlackAndDualPositive's own while-loop (original_source's setSlack).
func (c *ContactComplementarity) SetSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) {
	force, baumgarte, comp := c.forceView(), c.baumgarteView(), c.complementarityView()

	for i, fz := range c.fz(s) {
		slack := fz
		if slack < c.barrier {
			slack = c.barrier
		}
		force.Slack[i] = slack
	}
	SetSlackAndDualPositive(c.barrier, force)

	for i, hi := range c.refreshBaumgarte(robot) {
		slack := hi
		if slack < c.barrier {
			slack = c.barrier
		}
		baumgarte.Slack[i] = slack
	}
	SetSlackAndDualPositive(c.barrier, baumgarte)

	for i := range comp.Slack {
		comp.Slack[i] = c.epsilon - force.Slack[i]*baumgarte.Slack[i]
	}
	SetSlackAndDualPositive(c.barrier, comp)

	for i := range force.Dual {
		fd := c.barrier/force.Slack[i] - baumgarte.Slack[i]*comp.Dual[i]
		for fd < c.barrier {
			fd += c.barrier
		}
		force.Dual[i] = fd

		bd := c.barrier/baumgarte.Slack[i] - force.Slack[i]*comp.Dual[i]
		for bd < c.barrier {
			bd += c.barrier
		}
		baumgarte.Dual[i] = bd
	}
}

func (c *ContactComplementarity) AugmentDualResidual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, r *stage.KKTResidual) {
	force, baumgarte := c.forceView(), c.baumgarteView()
	lf := r.Lf()
	for i := 0; i < c.numContacts; i++ {
		lf[3*i+2] += -dtau * force.Dual[i]
	}
	dhdq, dhdv, dhda := c.refreshBaumgarteJacobians(robot)
	for i := 0; i < c.numContacts; i++ {
		dual := baumgarte.Dual[i]
		for a := 0; a < c.nv; a++ {
			r.Lq[a] += -dtau * dhdq[i][a] * dual
			r.Lv[a] += -dtau * dhdv[i][a] * dual
			r.La[a] += -dtau * dhda[i][a] * dual
		}
	}
}

// CondenseSlackAndDual folds the force, baumgarte, and complementarity
// blocks into a single coupled condensation: g_tt augments the force
// block (Qff), g_ss augments the baumgarte block (Qqq/Qvv/Qaa/Qqa/Qva),
// and g_st is the cross term shared between them (Qqf/Qvf/Qaf) — the
// naming crosses (g_tt -> force, g_ss -> baumgarte) exactly as in
// original_source's augmentCondensedHessian calls.
func (c *ContactComplementarity) CondenseSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) {
	n := c.numContacts
	force, baumgarte, comp := c.forceView(), c.baumgarteView(), c.complementarityView()

	fz := c.fz(s)
	h := c.refreshBaumgarte(robot)
	for i := 0; i < n; i++ {
		force.Residual[i] = fz[i] - force.Slack[i]
		baumgarte.Residual[i] = h[i] - baumgarte.Slack[i]
		comp.Residual[i] = comp.Slack[i] + force.Slack[i]*baumgarte.Slack[i] - c.epsilon
	}
	ComputeDuality(c.barrier, comp)
	for i := 0; i < n; i++ {
		force.Duality[i] = force.Slack[i]*force.Dual[i] + force.Slack[i]*baumgarte.Slack[i]*comp.Dual[i] - c.barrier
		baumgarte.Duality[i] = baumgarte.Slack[i]*baumgarte.Dual[i] + force.Slack[i]*baumgarte.Slack[i]*comp.Dual[i] - c.barrier
	}

	sg, sh, gw := c.sg[:n], c.sh[:n], c.gw[:n]
	gss, gst, gtt := c.gss[:n], c.gst[:n], c.gtt[:n]
	for i := 0; i < n; i++ {
		sg[i] = (force.Dual[i] + baumgarte.Slack[i]*comp.Dual[i]) / force.Slack[i]
		sh[i] = (baumgarte.Dual[i] + force.Slack[i]*comp.Dual[i]) / baumgarte.Slack[i]
		gw[i] = comp.Dual[i] / comp.Slack[i]
		gss[i] = force.Slack[i]*gw[i]*force.Slack[i] + sh[i]
		gst[i] = force.Slack[i]*gw[i]*baumgarte.Slack[i] + comp.Dual[i]
		gtt[i] = baumgarte.Slack[i]*gw[i]*baumgarte.Slack[i] + sg[i]
	}

	qff := m.Qff()
	for i := 0; i < n; i++ {
		qff[3*i+2][3*i+2] += dtau * dtau * gtt[i]
	}

	dhdq, dhdv, dhda := c.refreshBaumgarteJacobians(robot)
	qqq, qvv, qaa := m.Qqq(), m.Qvv(), m.Qaa()
	qqa, qva := m.Qqa(), m.Qva()
	qqf, qvf, qaf := m.Qqf(), m.Qvf(), m.Qaf()
	for i := 0; i < n; i++ {
		coeff := dtau * dtau * gss[i]
		cross := dtau * dtau * gst[i]
		col := 3*i + 2
		for a := 0; a < c.nv; a++ {
			qqf[a][col] += cross * dhdq[i][a]
			qvf[a][col] += cross * dhdv[i][a]
			qaf[a][col] += cross * dhda[i][a]
			for b := 0; b < c.nv; b++ {
				qqq[a][b] += coeff * dhdq[i][a] * dhdq[i][b]
				qvv[a][b] += coeff * dhdv[i][a] * dhdv[i][b]
				qaa[a][b] += coeff * dhda[i][a] * dhda[i][b]
				qqa[a][b] += coeff * dhdq[i][a] * dhda[i][b]
				qva[a][b] += coeff * dhdv[i][a] * dhda[i][b]
			}
		}
	}

	condensedForce, condensedBaumgarte := c.condensedForceResidual[:n], c.condensedBaumgarteResidual[:n]
	for i := 0; i < n; i++ {
		condensedForce[i] = gtt[i]*force.Residual[i] + gst[i]*baumgarte.Residual[i] -
			baumgarte.Slack[i]*gw[i]*comp.Residual[i] +
			baumgarte.Slack[i]*comp.Duality[i]/comp.Slack[i] -
			force.Duality[i]/force.Slack[i]
		condensedBaumgarte[i] = gst[i]*force.Residual[i] + gss[i]*baumgarte.Residual[i] -
			force.Slack[i]*gw[i]*comp.Residual[i] +
			force.Slack[i]*comp.Duality[i]/comp.Slack[i] -
			baumgarte.Duality[i]/baumgarte.Slack[i]
	}

	lf := r.Lf()
	for i := 0; i < n; i++ {
		lf[3*i+2] += dtau * condensedForce[i]
		grad := dtau * condensedBaumgarte[i]
		for a := 0; a < c.nv; a++ {
			r.Lq[a] += grad * dhdq[i][a]
			r.Lv[a] += grad * dhdv[i][a]
			r.La[a] += grad * dhda[i][a]
		}
	}
}

// ComputeSlackAndDualDirection propagates the Newton step through the
// coupled force/baumgarte/complementarity triple: the complementarity
// slack direction dsw depends on both dsg and dsh (their product's
// linearization), and the force/baumgarte dual directions in turn depend
// on dzw, so neither half can use the single-component
// ComputeDualDirection helper here.
func (c *ContactComplementarity) ComputeSlackAndDualDirection(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, d *stage.SplitDirection) {
	n := c.numContacts
	force, baumgarte, comp := c.forceView(), c.baumgarteView(), c.complementarityView()

	dfv := d.Fview()
	for i := 0; i < n; i++ {
		force.Dslack[i] = dtau*dfv[3*i+2] - force.Residual[i]
	}

	dhdq, dhdv, dhda := c.dhdq[:n], c.dhdv[:n], c.dhda[:n]
	for i := 0; i < n; i++ {
		var dh float64
		for a := 0; a < c.nv; a++ {
			dh += dhdq[i][a]*d.Q[a] + dhdv[i][a]*d.V[a] + dhda[i][a]*d.A[a]
		}
		baumgarte.Dslack[i] = dtau*dh - baumgarte.Residual[i]
	}

	sg, sh, gw := c.sg[:n], c.sh[:n], c.gw[:n]
	for i := 0; i < n; i++ {
		comp.Dslack[i] = -force.Slack[i]*baumgarte.Dslack[i] - baumgarte.Slack[i]*force.Dslack[i] - comp.Residual[i]
		comp.Ddual[i] = -gw[i]*comp.Dslack[i] - comp.Duality[i]/comp.Slack[i]

		force.Ddual[i] = -sg[i]*force.Dslack[i] - comp.Dual[i]*baumgarte.Dslack[i] -
			comp.Ddual[i]*baumgarte.Slack[i] - force.Duality[i]/force.Slack[i]
		baumgarte.Ddual[i] = -sh[i]*baumgarte.Dslack[i] - comp.Dual[i]*force.Dslack[i] -
			comp.Ddual[i]*force.Slack[i] - baumgarte.Duality[i]/baumgarte.Slack[i]
	}
}

func (c *ContactComplementarity) ResidualL1Norm() float64 {
	force, baumgarte, comp := c.forceView(), c.baumgarteView(), c.complementarityView()
	var sum float64
	for i := range force.Residual {
		sum += absf(force.Residual[i]) + absf(force.Duality[i])
	}
	for i := range baumgarte.Residual {
		sum += absf(baumgarte.Residual[i]) + absf(baumgarte.Duality[i])
	}
	for i := range comp.Residual {
		sum += absf(comp.Residual[i]) + absf(comp.Duality[i])
	}
	return sum
}

func (c *ContactComplementarity) SquaredKKTErrorNorm() float64 {
	force, baumgarte, comp := c.forceView(), c.baumgarteView(), c.complementarityView()
	var sum float64
	for i := range force.Residual {
		sum += force.Residual[i]*force.Residual[i] + force.Duality[i]*force.Duality[i]
	}
	for i := range baumgarte.Residual {
		sum += baumgarte.Residual[i]*baumgarte.Residual[i] + baumgarte.Duality[i]*baumgarte.Duality[i]
	}
	for i := range comp.Residual {
		sum += comp.Residual[i]*comp.Residual[i] + comp.Duality[i]*comp.Duality[i]
	}
	return sum
}

func (c *ContactComplementarity) CostBarrier(barrier float64) float64 {
	return CostBarrier(barrier, c.forceView().Slack) +
		CostBarrier(barrier, c.baumgarteView().Slack) +
		CostBarrier(barrier, c.complementarityView().Slack)
}

var _ Component = (*ContactComplementarity)(nil)

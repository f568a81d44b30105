// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// fakeRobot is a minimal robotmodel.Model stand-in; ContactDistance and
// ComputeBaumgarteResidual return fixed positive values and constant
// Jacobians so the condensation formulas can be checked without any real
// kinematics.
type fakeRobot struct {
	nv, np, maxPts int
	dist, baum     float64
}

func (f fakeRobot) Dimq() int             { return f.nv }
func (f fakeRobot) Dimv() int             { return f.nv }
func (f fakeRobot) DimPassive() int       { return f.np }
func (f fakeRobot) MaxPointContacts() int { return f.maxPts }
func (f fakeRobot) HasFloatingBase() bool { return f.np > 0 }
func (f fakeRobot) IntegrateConfiguration(q, v []float64, dt float64) []float64 { return nil }
func (f fakeRobot) IntegrateConfigurationJacobians(q, v []float64, dt float64) ([][]float64, [][]float64) {
	return nil, nil
}
func (f fakeRobot) SubtractConfiguration(qA, qB []float64) []float64 { return nil }
func (f fakeRobot) SubtractConfigurationJacobians(qA, qB []float64) ([][]float64, [][]float64) {
	return nil, nil
}
func (f fakeRobot) NormalizeConfiguration(q []float64)       {}
func (f fakeRobot) GenerateFeasibleConfiguration() []float64 { return make([]float64, f.nv) }
func (f fakeRobot) UpdateKinematics(q, v, a []float64)       {}
func (f fakeRobot) SetContactPointsByCurrentKinematics()     {}
func (f fakeRobot) SetContactStatus(active []bool)           {}
func (f fakeRobot) ComputeBaumgarteResidual(out []float64) {
	for i := range out {
		out[i] = f.baum
	}
}
func (f fakeRobot) ComputeBaumgarteDerivatives(dq, dv, da [][]float64) {
	for i := range dq {
		for j := range dq[i] {
			dq[i][j] = 1
			dv[i][j] = 0.5
			da[i][j] = 0.25
		}
	}
}
func (f fakeRobot) ContactDistance(out []float64) {
	for i := range out {
		out[i] = f.dist
	}
}
func (f fakeRobot) ContactDistanceJacobian(dq [][]float64) {
	for i := range dq {
		for j := range dq[i] {
			dq[i][j] = 1
		}
	}
}
func (f fakeRobot) RNEA(q, v, a []float64, tauOut []float64) {}
func (f fakeRobot) RNEADerivatives(q, v, a []float64, dTauDq, dTauDv, dTauDa [][]float64) {
}
func (f fakeRobot) DRNEAPartialDFext(out [][]float64)  {}
func (f fakeRobot) SetContactForces(fc []float64)      {}
func (f fakeRobot) JointEffortLimit() []float64        { return make([]float64, f.nv) }
func (f fakeRobot) JointVelocityLimit() []float64      { return make([]float64, f.nv) }
func (f fakeRobot) LowerJointPositionLimit() []float64 { return make([]float64, f.nv) }
func (f fakeRobot) UpperJointPositionLimit() []float64 { return make([]float64, f.nv) }

var _ robotmodel.Model = fakeRobot{}

func Test_set_slack_and_dual_positive_invariant(tst *testing.T) {
	chk.PrintTitle("set_slack_and_dual_positive_invariant")

	data := NewComponentData(3)
	data.Slack[0], data.Slack[1], data.Slack[2] = -0.2, 0.001, 5.0
	SetSlackAndDualPositive(0.01, data)

	if !data.CheckPositivity() {
		tst.Error("expected slack and dual strictly positive after lifting")
	}
}

func Test_fraction_to_boundary_bounds_in_0_1(tst *testing.T) {
	chk.PrintTitle("fraction_to_boundary_bounds_in_0_1")

	vec := []float64{1.0, 2.0, 0.5}
	dvec := []float64{-0.5, 1.0, -0.9}
	f := FractionToBoundary(0.99, vec, dvec)
	if f <= 0 || f > 1 {
		tst.Errorf("expected fraction in (0,1], got %v", f)
	}
	// component 0's ratio lands outside (0,1) and component 1's dvec is
	// positive (receding from the boundary), so only component 2
	// participates in the minimum.
	want := 0.99 * (vec[2] / 0.9)
	chk.Scalar(tst, "fractionToBoundary", 1e-12, f, want)
}

func Test_box_limit_feasibility_and_condensation(tst *testing.T) {
	chk.PrintTitle("box_limit_feasibility_and_condensation")

	robot := fakeRobot{nv: 3, maxPts: 0}
	bound := []float64{-1, -1, -1}
	b := NewBoxLimit("q", int(lowerSign), bound, 0.1, 0.995)

	s := stage.NewSplitSolution(robot)
	s.Q[0], s.Q[1], s.Q[2] = 0, -0.5, 2

	if !b.IsFeasible(robot, s) {
		tst.Error("expected feasible: q >= -1 everywhere")
	}

	b.SetSlackAndDual(robot, 1.0, s)
	if !b.Data().CheckPositivity() {
		tst.Error("expected positive slack/dual after init")
	}

	m := stage.NewKKTMatrix(robot)
	r := stage.NewKKTResidual(robot)
	cs := robotmodel.NewContactStatus(0)
	m.SetContactStatus(cs)
	r.SetContactStatus(cs)
	m.Zero()
	r.Zero()

	b.CondenseSlackAndDual(robot, 1.0, s, m, r)
	qqq := m.Qqq()
	for i := 0; i < 3; i++ {
		if qqq[i][i] <= 0 {
			tst.Errorf("expected positive condensed Hessian diagonal at %d, got %v", i, qqq[i][i])
		}
	}
}

func Test_contact_distance_feasibility(tst *testing.T) {
	chk.PrintTitle("contact_distance_feasibility")

	robot := fakeRobot{nv: 6, maxPts: 2, dist: 0.05}
	cd := NewContactDistance(0.01, 0.995, 2, 6)
	cd.Resize(2)

	s := stage.NewSplitSolution(robot)
	if !cd.IsFeasible(robot, s) {
		tst.Error("expected feasible: distance 0.05 > 0")
	}

	robot.dist = -0.02
	if cd.IsFeasible(robot, s) {
		tst.Error("expected infeasible: distance -0.02 < 0")
	}
}

func Test_contact_complementarity_condensation_symmetric(tst *testing.T) {
	chk.PrintTitle("contact_complementarity_condensation_symmetric")

	const epsilon = 0.05
	robot := fakeRobot{nv: 6, maxPts: 1, baum: 0.2}
	cc := NewContactComplementarity(0.01, 0.995, epsilon, 1, 6)
	cc.Resize(1)

	s := stage.NewSplitSolution(robot)
	cs := robotmodel.NewContactStatus(1)
	cs.Activate(0)
	s.SetContactStatus(cs)
	s.Fview()[2] = 10.0 // fz

	cc.SetSlackAndDual(robot, 1.0, s)
	if !cc.Data().CheckPositivity() {
		tst.Error("expected positive slack/dual across force, baumgarte, and complementarity blocks after init")
	}

	// s_g*s_h = 10*0.2 = 2 exceeds epsilon, so epsilon - s_g*s_h is
	// negative and SetSlackAndDual lifts s_w by barrier steps to the first
	// value >= barrier (0.01) instead of leaving s_g*s_h + s_w = epsilon.
	sg := cc.forceView().Slack[0]
	sh := cc.BaumgarteData().Slack[0]
	sw := cc.ComplementarityData().Slack[0]
	chk.Scalar(tst, "s_g*s_h", 1e-12, sg*sh, 2)
	chk.Scalar(tst, "s_w", 1e-12, sw, 0.01)

	m := stage.NewKKTMatrix(robot)
	r := stage.NewKKTResidual(robot)
	m.SetContactStatus(cs)
	r.SetContactStatus(cs)
	m.Zero()
	r.Zero()

	cc.CondenseSlackAndDual(robot, 1.0, s, m, r)

	// the cross term g_st must actually couple the force column (Qqf)
	// to the baumgarte rows (Qqq/Qvv/Qaa); a decoupled condensation (the
	// bug under review) would leave Qqf identically zero.
	qqf := m.Qqf()
	var crossNorm float64
	for a := 0; a < 6; a++ {
		crossNorm += absf(qqf[a][2])
	}
	if crossNorm == 0 {
		tst.Error("expected nonzero force/baumgarte cross term in Qqf from the complementarity coupling")
	}

	forceData := cc.forceView()
	baumgarteData := cc.BaumgarteData()
	compData := cc.ComplementarityData()
	// the force and baumgarte blocks must carry a nonzero duality-corrected
	// gradient term; the resolved transcription bug requires the force
	// half's gradient contribution to include the same "- duality/slack"
	// correction the baumgarte half carries. The complementarity block's
	// duality s_w*z_w - barrier is zero, since SetSlackAndDual sets
	// z_w = barrier/s_w.
	if forceData.Duality[0] == 0 || baumgarteData.Duality[0] == 0 {
		tst.Error("expected nonzero duality residual in the coupled force and baumgarte blocks for a non-centered initial iterate")
	}
	chk.Scalar(tst, "complementarity duality", 1e-12, compData.Duality[0], 0)
}

func Test_constraints_stack_aggregates_feasibility(tst *testing.T) {
	chk.PrintTitle("constraints_stack_aggregates_feasibility")

	robot := fakeRobot{nv: 3, maxPts: 0}
	s := stage.NewSplitSolution(robot)
	s.Q[0], s.Q[1], s.Q[2] = 0, 0, 0

	lower := NewBoxLimit("q", int(lowerSign), []float64{-1, -1, -1}, 0.1, 0.995)
	upper := NewBoxLimit("q", int(upperSign), []float64{1, 1, 1}, 0.1, 0.995)

	stack := NewConstraints(0.1, 0.995)
	stack.Push(lower)
	stack.Push(upper)

	if !stack.IsFeasible(robot, s) {
		tst.Error("expected feasible: q=0 within [-1,1]")
	}

	stack.SetSlackAndDual(robot, 1.0, s)
	if stack.ResidualL1Norm() < 0 {
		tst.Error("expected non-negative aggregate residual norm")
	}
	if stack.MaxSlackStepSize() <= 0 || stack.MaxSlackStepSize() > 1 {
		tst.Errorf("expected aggregate slack step size in (0,1], got %v", stack.MaxSlackStepSize())
	}
}

func Test_friction_cone_feasibility_and_condensation(tst *testing.T) {
	chk.PrintTitle("friction_cone_feasibility_and_condensation")

	robot := fakeRobot{nv: 6, maxPts: 1}
	fc := NewFrictionCone(0.7, 0.01, 0.995, 1)
	fc.Resize(1)

	cs := robotmodel.NewContactStatus(1)
	cs.Activate(0)
	s := stage.NewSplitSolution(robot)
	s.SetContactStatus(cs)
	s.Fview()[0], s.Fview()[1], s.Fview()[2] = 1.0, -1.0, 5.0 // fx, fy, fz; mu*fz=3.5 > |fx|,|fy|

	if !fc.IsFeasible(robot, s) {
		tst.Error("expected feasible: fx, fy well within the mu*fz pyramid")
	}

	s.Fview()[0] = 10.0 // now fx exceeds mu*fz
	if fc.IsFeasible(robot, s) {
		tst.Error("expected infeasible: fx exceeds mu*fz")
	}
	s.Fview()[0] = 1.0

	fc.SetSlackAndDual(robot, 1.0, s)
	if !fc.Data().CheckPositivity() {
		tst.Error("expected positive slack/dual after init")
	}

	m := stage.NewKKTMatrix(robot)
	r := stage.NewKKTResidual(robot)
	m.SetContactStatus(cs)
	r.SetContactStatus(cs)
	m.Zero()
	r.Zero()

	fc.CondenseSlackAndDual(robot, 1.0, s, m, r)
	qff := m.Qff()
	var diagSum float64
	for i := 0; i < 3; i++ {
		diagSum += qff[i][i]
	}
	if diagSum <= 0 {
		tst.Errorf("expected positive condensed Hessian contribution on the force diagonal, got %v", diagSum)
	}

	d := stage.NewSplitDirection(robot)
	d.Fview()[0], d.Fview()[1], d.Fview()[2] = 0.1, -0.05, 0.2
	fc.ComputeSlackAndDualDirection(robot, 1.0, s, d)
	if !fc.Data().CheckPositivity() {
		tst.Error("expected unchanged positivity of slack/dual data after computing a direction")
	}
}

// Test_barrier_schedule_decays_and_floors_smoothly exercises
// BarrierSchedule.Next/SmoothBarrierFloor: repeated decay must never
// increase mu and must bring it close to Floor without ever dropping (much)
// below it, and a
// zero DecayRate must leave mu untouched.
func Test_barrier_schedule_decays_and_floors_smoothly(tst *testing.T) {
	chk.PrintTitle("barrier schedule decays and floors smoothly")

	sched := BarrierSchedule{DecayRate: 0.2, Floor: 1e-4, Width: 1e-3}
	mu := 1.0
	prev := mu
	for i := 0; i < 20; i++ {
		mu = sched.Next(mu)
		if mu > prev {
			tst.Fatalf("iteration %d: mu increased from %g to %g", i, prev, mu)
		}
		if mu < sched.Floor-1e-6 {
			tst.Fatalf("iteration %d: mu = %g dropped below floor %g", i, mu, sched.Floor)
		}
		prev = mu
	}
	if mu > 1e-2 {
		tst.Fatalf("expected mu to have decayed close to the floor after 20 iterations, got %g", mu)
	}

	unchanged := BarrierSchedule{}
	if got := unchanged.Next(0.5); got != 0.5 {
		tst.Fatalf("zero-value schedule must leave mu unchanged, got %g", got)
	}
}

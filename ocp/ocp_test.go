// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocp

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/ocprobot/constraints"
	"github.com/cpmech/ocprobot/costfunc"
	"github.com/cpmech/ocprobot/robotmodel"
)

// testRobot is a Euclidean-configuration-space stand-in (nq == nv, no
// floating base, unit-mass RNEA tau = a), the same device
// dynamics/dynamics_test.go's euclideanRobot uses: it reduces the
// inverse-dynamics chain rule to the identity, so the finite-horizon
// problem this package assembles around it is an exact linear-quadratic
// one and the Newton/Riccati pass must reach its optimum in very few
// iterations.
type testRobot struct {
	nv, maxPts int
}

func testIdentity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

func (r testRobot) Dimq() int             { return r.nv }
func (r testRobot) Dimv() int             { return r.nv }
func (r testRobot) DimPassive() int       { return 0 }
func (r testRobot) MaxPointContacts() int { return r.maxPts }
func (r testRobot) HasFloatingBase() bool { return false }

func (r testRobot) IntegrateConfiguration(q, v []float64, dt float64) []float64 {
	out := make([]float64, len(q))
	for i := range q {
		out[i] = q[i] + dt*v[i]
	}
	return out
}
func (r testRobot) IntegrateConfigurationJacobians(q, v []float64, dt float64) ([][]float64, [][]float64) {
	dq := testIdentity(r.nv)
	dv := testIdentity(r.nv)
	for i := 0; i < r.nv; i++ {
		dv[i][i] = dt
	}
	return dq, dv
}
func (r testRobot) SubtractConfiguration(qA, qB []float64) []float64 {
	out := make([]float64, len(qA))
	for i := range qA {
		out[i] = qA[i] - qB[i]
	}
	return out
}
func (r testRobot) SubtractConfigurationJacobians(qA, qB []float64) ([][]float64, [][]float64) {
	dA := testIdentity(r.nv)
	dB := testIdentity(r.nv)
	for i := 0; i < r.nv; i++ {
		dB[i][i] = -1
	}
	return dA, dB
}
func (r testRobot) NormalizeConfiguration(q []float64)        {}
func (r testRobot) GenerateFeasibleConfiguration() []float64  { return make([]float64, r.nv) }
func (r testRobot) UpdateKinematics(q, v, a []float64)        {}
func (r testRobot) SetContactPointsByCurrentKinematics()      {}
func (r testRobot) SetContactStatus(active []bool)            {}
func (r testRobot) ComputeBaumgarteResidual(out []float64) {
	for i := range out {
		out[i] = 0
	}
}
// ComputeBaumgarteDerivatives gives each active contact's acceleration
// residual a unit dependency on the matching generalized acceleration
// (da = I on the leading dimf x dimf block), a stand-in contact Jacobian
// just rich enough that the equality-constraint Schur complement in
// riccati.MatrixInverter is nonsingular when a contact is active.
func (r testRobot) ComputeBaumgarteDerivatives(dq, dv, da [][]float64) {
	for i := range da {
		if i < r.nv {
			da[i][i] = 1
		}
	}
}
func (r testRobot) ContactDistance(out []float64)                      {}
func (r testRobot) ContactDistanceJacobian(dq [][]float64)             {}
func (r testRobot) RNEA(q, v, a []float64, tauOut []float64) {
	copy(tauOut, a)
}
func (r testRobot) RNEADerivatives(q, v, a []float64, dTauDq, dTauDv, dTauDa [][]float64) {
	for i := 0; i < r.nv; i++ {
		dTauDa[i][i] = 1
	}
}
func (r testRobot) DRNEAPartialDFext(out [][]float64) {}
func (r testRobot) SetContactForces(f []float64)      {}
func (r testRobot) JointEffortLimit() []float64 {
	out := make([]float64, r.nv)
	for i := range out {
		out[i] = 1000
	}
	return out
}
func (r testRobot) JointVelocityLimit() []float64 {
	out := make([]float64, r.nv)
	for i := range out {
		out[i] = 1000
	}
	return out
}
func (r testRobot) LowerJointPositionLimit() []float64 {
	out := make([]float64, r.nv)
	for i := range out {
		out[i] = -1000
	}
	return out
}
func (r testRobot) UpperJointPositionLimit() []float64 {
	out := make([]float64, r.nv)
	for i := range out {
		out[i] = 1000
	}
	return out
}

var _ robotmodel.Model = testRobot{}

// trackingProblem builds a shared cost function (q/v/a quadratic tracking,
// reused unchanged for every stage and for the terminal cost, since
// QuadraticTrackingCost carries no per-stage state) and a stageFactory
// giving every stage its own empty Constraints stack (no inequalities
// pushed, so the fraction-to-boundary bounds are always 1 and the problem
// is a pure equality-constrained LQR).
func trackingProblem(robot testRobot, qRef []float64) (*costfunc.CostFunction, func(t int) *SplitOCP, *TerminalOCP) {
	nv := robot.nv
	qWeight, vWeight, aWeight := make([]float64, nv), make([]float64, nv), make([]float64, nv)
	for i := 0; i < nv; i++ {
		qWeight[i], vWeight[i], aWeight[i] = 1, 0.1, 0.01
	}

	cost := costfunc.NewCostFunction()
	cost.Push(&costfunc.QuadraticTrackingCost{Block: "q", W: qWeight, Ref: qRef})
	cost.Push(&costfunc.QuadraticTrackingCost{Block: "v", W: vWeight})
	cost.Push(&costfunc.QuadraticTrackingCost{Block: "a", W: aWeight})

	stageFactory := func(t int) *SplitOCP {
		cstr := constraints.NewConstraints(1e-2, 0.995)
		return NewSplitOCP(robot, cost, cstr, nil)
	}
	terminal := NewTerminalOCP(cost)
	return cost, stageFactory, terminal
}

func Test_ocp_converges_on_unconstrained_tracking_problem(tst *testing.T) {
	chk.PrintTitle("ocp converges on unconstrained tracking problem")

	robot := testRobot{nv: 2}
	N, dtau := 5, 0.1
	qRef := []float64{1.0, -1.0}
	_, stageFactory, terminal := trackingProblem(robot, qRef)

	contacts := NewContactSequence(N, robotmodel.NewContactStatus(0))
	o := NewOCP(robot, N, dtau, contacts, stageFactory, terminal, 2)
	o.KKTTol = 1e-8

	o.Solution(0).Q[0], o.Solution(0).Q[1] = 0, 0
	o.Solution(0).V[0], o.Solution(0).V[1] = 0, 0

	if err := o.Solve(); err != nil {
		tst.Fatalf("Solve failed: %v", err)
	}

	kkt := o.KKTError()
	chk.Scalar(tst, "kktError", 1e-6, kkt, 0)

	// the horizon is short relative to the tracking weight, so q(N) only
	// approaches qRef; it must at least move substantially off q(0).
	qN := o.Solution(N).Q
	if qN[0] < 0.05 || qN[1] > -0.05 {
		tst.Fatalf("expected q(N) to move toward qRef, got %v", qN)
	}
}

// Test_ocp_drives_inverse_dynamics_residual_to_zero exercises the torque
// direction recovery (dynamics.RobotDynamics.TorqueDirection): since U is
// never a free Newton unknown (it is condensed out of the stage block via
// the cost's Luu folded through RNEA's Jacobian), the forward pass must
// update it in lock-step with (dq, dv, da, df) or the inverse-dynamics
// residual u - RNEA(q,v,a,f) never converges.
func Test_ocp_drives_inverse_dynamics_residual_to_zero(tst *testing.T) {
	chk.PrintTitle("ocp drives inverse dynamics residual to zero")

	robot := testRobot{nv: 2}
	N, dtau := 4, 0.1
	qRef := []float64{0.5, 0.5}
	_, stageFactory, terminal := trackingProblem(robot, qRef)

	contacts := NewContactSequence(N, robotmodel.NewContactStatus(0))
	o := NewOCP(robot, N, dtau, contacts, stageFactory, terminal, 1)
	o.KKTTol = 1e-8

	if err := o.Solve(); err != nil {
		tst.Fatalf("Solve failed: %v", err)
	}

	for t := 0; t < N; t++ {
		s := o.Solution(t)
		for i, u := range s.U {
			d := u - s.A[i] // RNEA(q,v,a) = a for testRobot
			if d < 0 {
				d = -d
			}
			if d > 1e-6 {
				tst.Fatalf("stage %d: u_res[%d] = %g, want ~0 (u=%g, a=%g)", t, i, d, u, s.A[i])
			}
		}
	}
}

// Test_ocp_recovers_torque_feedback_gain exercises
// dynamics.RobotDynamics.StateFeedbackGain through OCP.TorqueFeedbackGain:
// for testRobot, RNEA(q,v,a) = a makes dTau/da the identity and
// dTau/dq = dTau/dv = dTau/df = 0, so Kuq/Kuv must come back exactly equal
// to the stage's own acceleration feedback gains Kaq/Kav.
func Test_ocp_recovers_torque_feedback_gain(tst *testing.T) {
	chk.PrintTitle("ocp recovers torque feedback gain")

	robot := testRobot{nv: 2}
	N, dtau := 4, 0.1
	qRef := []float64{0.4, -0.3}
	_, stageFactory, terminal := trackingProblem(robot, qRef)

	contacts := NewContactSequence(N, robotmodel.NewContactStatus(0))
	o := NewOCP(robot, N, dtau, contacts, stageFactory, terminal, 1)
	o.KKTTol = 1e-8

	if err := o.Solve(); err != nil {
		tst.Fatalf("Solve failed: %v", err)
	}

	for t := 0; t < N; t++ {
		Kuq, Kuv := o.TorqueFeedbackGain(t)
		Kaq, Kav := o.gains[t].Kaq, o.gains[t].Kav
		for i := range Kuq {
			for j := range Kuq[i] {
				if diff := Kuq[i][j] - Kaq[i][j]; diff > 1e-9 || diff < -1e-9 {
					tst.Fatalf("stage %d: Kuq[%d][%d] = %g, want %g", t, i, j, Kuq[i][j], Kaq[i][j])
				}
				if diff := Kuv[i][j] - Kav[i][j]; diff > 1e-9 || diff < -1e-9 {
					tst.Fatalf("stage %d: Kuv[%d][%d] = %g, want %g", t, i, j, Kuv[i][j], Kav[i][j])
				}
			}
		}
	}
}

// contactProblem mirrors trackingProblem but gives every stage a full
// contact-inequality stack (ContactDistance, FrictionCone,
// ContactComplementarity) over a single always-active point contact, so
// Solve exercises their condensation/direction/fraction-to-boundary code
// through the real Riccati pipeline instead of only constraints package's
// own unit tests.
func contactProblem(robot testRobot, qRef []float64) (func(t int) *SplitOCP, *TerminalOCP) {
	nv := robot.nv
	qWeight, vWeight, aWeight := make([]float64, nv), make([]float64, nv), make([]float64, nv)
	for i := 0; i < nv; i++ {
		qWeight[i], vWeight[i], aWeight[i] = 1, 0.1, 0.01
	}

	cost := costfunc.NewCostFunction()
	cost.Push(&costfunc.QuadraticTrackingCost{Block: "q", W: qWeight, Ref: qRef})
	cost.Push(&costfunc.QuadraticTrackingCost{Block: "v", W: vWeight})
	cost.Push(&costfunc.QuadraticTrackingCost{Block: "a", W: aWeight})

	const barrier, fractionRate, mu, epsilon = 1e-2, 0.995, 0.5, 1e-3

	stageFactory := func(t int) *SplitOCP {
		cstr := constraints.NewConstraints(barrier, fractionRate)

		dist := constraints.NewContactDistance(barrier, fractionRate, robot.maxPts, nv)
		dist.Resize(1)
		cstr.Push(dist)

		cone := constraints.NewFrictionCone(mu, barrier, fractionRate, robot.maxPts)
		cone.Resize(1)
		cstr.Push(cone)

		comp := constraints.NewContactComplementarity(barrier, fractionRate, epsilon, robot.maxPts, nv)
		comp.Resize(1)
		cstr.Push(comp)

		return NewSplitOCP(robot, cost, cstr, nil)
	}
	terminal := NewTerminalOCP(cost)
	return stageFactory, terminal
}

// Test_ocp_converges_with_contact_complementarity_constraints exercises
// ContactDistance, FrictionCone, and ContactComplementarity end-to-end
// through OCP.Solve: assembly, condensation into the shared Qff/Qqq/Qqf
// blocks, Riccati factorization of the resulting (a,f) saddle block, and
// the forward pass's ComputeSlackAndDualDirection, not just the
// constraints package's own isolated unit tests.
func Test_ocp_converges_with_contact_complementarity_constraints(tst *testing.T) {
	chk.PrintTitle("ocp converges with an active contact complementarity stack")

	robot := testRobot{nv: 3, maxPts: 1}
	N, dtau := 5, 0.1
	qRef := []float64{0.2, -0.2, 0.3}
	stageFactory, terminal := contactProblem(robot, qRef)

	active := robotmodel.NewContactStatus(1)
	active.Activate(0)
	contacts := NewContactSequence(N, active)

	o := NewOCP(robot, N, dtau, contacts, stageFactory, terminal, 2)
	o.KKTTol = 1e-8

	if err := o.Solve(); err != nil {
		tst.Fatalf("Solve failed: %v", err)
	}

	kkt := o.KKTError()
	chk.Scalar(tst, "kktError", 1e-6, kkt, 0)

	for t := 0; t < N; t++ {
		fz := o.Solution(t).Fview()[2]
		if fz < -1e-6 {
			tst.Fatalf("stage %d: normal force fz = %g, want >= 0", t, fz)
		}
	}
}

// Test_ocp_tracks_contact_dimension_switch exercises the no-reallocation
// contact-dimension-switch path: the contact
// force block (dimf = 3 here) appears only from stage 2 onward, and
// MatrixInverter.Invert must regularize the otherwise-singular all-zero
// Qff block (no cost component ever weights f directly in this fixture)
// rather than fail.
func Test_ocp_tracks_contact_dimension_switch(tst *testing.T) {
	chk.PrintTitle("ocp tracks a contact activation switching the stage dimension")

	robot := testRobot{nv: 3, maxPts: 1}
	N, dtau := 4, 0.1
	qRef := []float64{0.2, -0.2, 0.3}
	_, stageFactory, terminal := trackingProblem(robot, qRef)

	inactive := robotmodel.NewContactStatus(1)
	active := robotmodel.NewContactStatus(1)
	active.Activate(0)

	contacts := NewContactSequence(N, inactive)
	contacts.Set(2, active)
	contacts.Set(3, active)

	o := NewOCP(robot, N, dtau, contacts, stageFactory, terminal, 2)
	o.KKTTol = 1e-8

	if err := o.Solve(); err != nil {
		tst.Fatalf("Solve failed: %v", err)
	}
	if kkt := o.KKTError(); kkt > 1e-6 {
		tst.Fatalf("kktError = %g, want < 1e-6", kkt)
	}
	if o.Solution(2).Dimf() != 3 {
		tst.Fatalf("stage 2 dimf = %d, want 3", o.Solution(2).Dimf())
	}
	if o.Solution(0).Dimf() != 0 {
		tst.Fatalf("stage 0 dimf = %d, want 0", o.Solution(0).Dimf())
	}
}

// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamics

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// euclideanRobot is a Euclidean-configuration-space stand-in (nq == nv, no
// floating base): integrate/subtract reduce to ordinary vector arithmetic,
// letting the forward/backward-Euler identities be checked exactly rather
// than only to first order.
type euclideanRobot struct {
	nv, maxPts int
}

func identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

func (r euclideanRobot) Dimq() int             { return r.nv }
func (r euclideanRobot) Dimv() int             { return r.nv }
func (r euclideanRobot) DimPassive() int       { return 0 }
func (r euclideanRobot) MaxPointContacts() int { return r.maxPts }
func (r euclideanRobot) HasFloatingBase() bool { return false }

func (r euclideanRobot) IntegrateConfiguration(q, v []float64, dt float64) []float64 {
	out := make([]float64, len(q))
	for i := range q {
		out[i] = q[i] + dt*v[i]
	}
	return out
}
func (r euclideanRobot) IntegrateConfigurationJacobians(q, v []float64, dt float64) ([][]float64, [][]float64) {
	dq := identity(r.nv)
	dv := identity(r.nv)
	for i := 0; i < r.nv; i++ {
		dv[i][i] = dt
	}
	return dq, dv
}
func (r euclideanRobot) SubtractConfiguration(qA, qB []float64) []float64 {
	out := make([]float64, len(qA))
	for i := range qA {
		out[i] = qA[i] - qB[i]
	}
	return out
}
func (r euclideanRobot) SubtractConfigurationJacobians(qA, qB []float64) ([][]float64, [][]float64) {
	dA := identity(r.nv)
	dB := identity(r.nv)
	for i := 0; i < r.nv; i++ {
		dB[i][i] = -1
	}
	return dA, dB
}
func (r euclideanRobot) NormalizeConfiguration(q []float64)       {}
func (r euclideanRobot) GenerateFeasibleConfiguration() []float64 { return make([]float64, r.nv) }
func (r euclideanRobot) UpdateKinematics(q, v, a []float64)       {}
func (r euclideanRobot) SetContactPointsByCurrentKinematics()     {}
func (r euclideanRobot) SetContactStatus(active []bool)           {}
func (r euclideanRobot) ComputeBaumgarteResidual(out []float64) {
	for i := range out {
		out[i] = 0
	}
}
func (r euclideanRobot) ComputeBaumgarteDerivatives(dq, dv, da [][]float64) {}
func (r euclideanRobot) ContactDistance(out []float64)                      {}
func (r euclideanRobot) ContactDistanceJacobian(dq [][]float64)             {}
func (r euclideanRobot) RNEA(q, v, a []float64, tauOut []float64) {
	// trivial unit-mass diagonal dynamics: tau = a.
	copy(tauOut, a)
}
func (r euclideanRobot) RNEADerivatives(q, v, a []float64, dTauDq, dTauDv, dTauDa [][]float64) {
	for i := 0; i < r.nv; i++ {
		dTauDa[i][i] = 1
	}
}
func (r euclideanRobot) DRNEAPartialDFext(out [][]float64) {}
func (r euclideanRobot) SetContactForces(f []float64)      {}
func (r euclideanRobot) JointEffortLimit() []float64        { return make([]float64, r.nv) }
func (r euclideanRobot) JointVelocityLimit() []float64       { return make([]float64, r.nv) }
func (r euclideanRobot) LowerJointPositionLimit() []float64  { return make([]float64, r.nv) }
func (r euclideanRobot) UpperJointPositionLimit() []float64  { return make([]float64, r.nv) }

var _ robotmodel.Model = euclideanRobot{}

func Test_forward_euler_residual_is_zero_on_exact_rollout(tst *testing.T) {
	chk.PrintTitle("forward_euler_residual_is_zero_on_exact_rollout")

	robot := euclideanRobot{nv: 4}
	dtau := 0.1
	s := stage.NewSplitSolution(robot)
	s.Q[0], s.Q[1], s.Q[2], s.Q[3] = 1, 2, 3, 4
	s.V[0], s.V[1], s.V[2], s.V[3] = 0.1, -0.2, 0.3, 0.0
	s.A[0], s.A[1], s.A[2], s.A[3] = 0.5, 0.5, -1, 0

	sNext := stage.NewSplitSolution(robot)
	qNext := robot.IntegrateConfiguration(s.Q, s.V, dtau)
	copy(sNext.Q, qNext)
	for i := range sNext.V {
		sNext.V[i] = s.V[i] + dtau*s.A[i]
	}

	r := stage.NewKKTResidual(robot)
	r.Zero()

	var eq StateEquation
	eq.Forward(robot, dtau, s, sNext, r)

	chk.Scalar(tst, "forwardEulerViolation", 1e-12, ViolationL1Norm(r.Fq, r.Fv), 0)
}

func Test_backward_euler_residual_is_zero_on_exact_rollout(tst *testing.T) {
	chk.PrintTitle("backward_euler_residual_is_zero_on_exact_rollout")

	robot := euclideanRobot{nv: 3}
	dtau := 0.2
	sPrev := stage.NewSplitSolution(robot)
	sPrev.Q[0], sPrev.Q[1], sPrev.Q[2] = 0, 1, -1
	sPrev.V[0], sPrev.V[1], sPrev.V[2] = 0.2, 0.1, 0.0

	s := stage.NewSplitSolution(robot)
	s.A[0], s.A[1], s.A[2] = 1.0, -0.5, 0.25
	for i := range s.V {
		s.V[i] = sPrev.V[i] + dtau*s.A[i]
	}
	// backward Euler is implicit in v: q is advanced using the *current*
	// stage's velocity, not q_prev's, so that q_prev ⊖ q + dtau·v is
	// exactly zero.
	qNext := robot.IntegrateConfiguration(sPrev.Q, s.V, dtau)
	copy(s.Q, qNext)

	r := stage.NewKKTResidual(robot)
	r.Zero()

	var eq StateEquation
	eq.Backward(robot, dtau, sPrev, s, r)

	chk.Scalar(tst, "backwardEulerViolation", 1e-12, ViolationL1Norm(r.Fq, r.Fv), 0)
}

func Test_subtract_over_dt_recovers_velocity(tst *testing.T) {
	chk.PrintTitle("subtract_over_dt_recovers_velocity")

	robot := euclideanRobot{nv: 2}
	q := []float64{1.0, -2.0}
	v := []float64{0.3, 0.7}
	dt := 0.05

	got := SubtractOverDt(robot, q, v, dt)
	chk.Scalar(tst, "v0", 1e-9, got[0], v[0])
	chk.Scalar(tst, "v1", 1e-9, got[1], v[1])
}

func Test_robot_dynamics_residual_and_condensation(tst *testing.T) {
	chk.PrintTitle("robot_dynamics_residual_and_condensation")

	robot := euclideanRobot{nv: 3, maxPts: 0}
	s := stage.NewSplitSolution(robot)
	s.A[0], s.A[1], s.A[2] = 1, 2, 3
	s.U[0], s.U[1], s.U[2] = 1, 2, 3 // exactly matches RNEA(q,v,a) = a

	d := NewRobotDynamics(robot)
	r := stage.NewKKTResidual(robot)
	r.Zero()
	d.ComputeResidual(robot, s, r)

	for i, u := range r.Ures {
		if u != 0 {
			tst.Errorf("expected zero inverse-dynamics residual at %d, got %v", i, u)
		}
	}

	d.ComputeJacobians(robot, s)
	m := stage.NewKKTMatrix(robot)
	cs := robotmodel.NewContactStatus(0)
	m.SetContactStatus(cs)
	r.SetContactStatus(cs)
	m.Zero()

	quu := identity(3) // stand-in condensed torque Hessian
	r.Lu[0], r.Lu[1], r.Lu[2] = 0.1, 0.2, 0.3
	d.Condense(s, quu, m, r)

	qaa := m.Qaa()
	for i := 0; i < 3; i++ {
		if qaa[i][i] <= 0 {
			tst.Errorf("expected positive condensed Qaa diagonal at %d, got %v", i, qaa[i][i])
		}
	}
	for i, la := range r.La {
		if la == 0 {
			tst.Errorf("expected nonzero condensed La contribution at %d", i)
		}
	}
}

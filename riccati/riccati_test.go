// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riccati

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// fixedRobot is a 2-DoF Euclidean stand-in with room for one point contact
// (none is activated here), used only to size stage containers for the
// riccati tests.
type fixedRobot struct{}

func (fixedRobot) Dimq() int             { return 2 }
func (fixedRobot) Dimv() int             { return 2 }
func (fixedRobot) DimPassive() int       { return 0 }
func (fixedRobot) MaxPointContacts() int { return 1 }
func (fixedRobot) HasFloatingBase() bool { return false }
func (fixedRobot) IntegrateConfiguration(q, v []float64, dt float64) []float64 {
	out := make([]float64, len(q))
	for i := range q {
		out[i] = q[i] + dt*v[i]
	}
	return out
}
func (fixedRobot) IntegrateConfigurationJacobians(q, v []float64, dt float64) ([][]float64, [][]float64) {
	return nil, nil
}
func (fixedRobot) SubtractConfiguration(a, b []float64) []float64 { return nil }
func (fixedRobot) SubtractConfigurationJacobians(a, b []float64) ([][]float64, [][]float64) {
	return nil, nil
}
func (fixedRobot) NormalizeConfiguration(q []float64)                   {}
func (fixedRobot) GenerateFeasibleConfiguration() []float64             { return nil }
func (fixedRobot) UpdateKinematics(q, v, a []float64)                   {}
func (fixedRobot) SetContactPointsByCurrentKinematics()                 {}
func (fixedRobot) SetContactStatus(active []bool)                      {}
func (fixedRobot) ComputeBaumgarteResidual(out []float64)               {}
func (fixedRobot) ComputeBaumgarteDerivatives(dq, dv, da [][]float64)   {}
func (fixedRobot) ContactDistance(out []float64)                        {}
func (fixedRobot) ContactDistanceJacobian(dq [][]float64)               {}
func (fixedRobot) RNEA(q, v, a []float64, tauOut []float64)             {}
func (fixedRobot) RNEADerivatives(q, v, a []float64, dq, dv, da [][]float64) {}
func (fixedRobot) DRNEAPartialDFext(out [][]float64)                    {}
func (fixedRobot) SetContactForces(f []float64)                         {}
func (fixedRobot) JointEffortLimit() []float64                          { return make([]float64, 2) }
func (fixedRobot) JointVelocityLimit() []float64                        { return make([]float64, 2) }
func (fixedRobot) LowerJointPositionLimit() []float64                   { return make([]float64, 2) }
func (fixedRobot) UpperJointPositionLimit() []float64                   { return make([]float64, 2) }

var _ robotmodel.Model = fixedRobot{}

// Test_matrix_inverter_is_a_true_inverse checks Ginv*M == I on a hand-built
// SPD G (3x3, over two acceleration DoFs + one contact-force component, split
// at navSplit = 2) and a
// full-row-rank single-row equality Jacobian C.
func Test_matrix_inverter_is_a_true_inverse(tst *testing.T) {
	chk.PrintTitle("matrix_inverter_is_a_true_inverse")

	n, nc := 3, 1
	G := [][]float64{
		{4, 1, 0},
		{1, 3, 1},
		{0, 1, 2},
	}
	C := [][]float64{{1, 0, 1}}

	inv := NewMatrixInverter(n, nc)
	ginv, err := inv.Invert(G, C, n, nc, 2, 1e-6)
	if err != nil {
		tst.Fatalf("unexpected factorization error: %v", err)
	}

	M := zeros(n+nc, n+nc)
	copyBlock(M, G, 0, 0)
	copyBlock(M, transpose(C, nc, n), 0, n)
	copyBlock(M, C, n, 0)

	prod := matMul(ginv, M, n+nc, n+nc, n+nc)
	for i := 0; i < n+nc; i++ {
		for j := 0; j < n+nc; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			chk.Scalar(tst, "GinvM", 1e-9, prod[i][j], want)
		}
	}
}

// Test_matrix_inverter_regularizes_singular_block checks that a
// rank-deficient (only-PSD) G is retried with an epsilon regularizer on the
// f-block rather than failing outright.
func Test_matrix_inverter_regularizes_singular_block(tst *testing.T) {
	chk.PrintTitle("matrix_inverter_regularizes_singular_block")

	n, nc := 2, 0
	G := [][]float64{
		{1, 0},
		{0, 0}, // singular f-block
	}
	inv := NewMatrixInverter(n, nc)
	_, err := inv.Invert(G, nil, n, nc, 1, 1e-3)
	if err != nil {
		tst.Fatalf("expected regularized retry to succeed, got error: %v", err)
	}
	if !inv.Regularized {
		tst.Errorf("expected Regularized to be set after a PSD G triggered the epsilon retry")
	}
}

// Test_gain_and_factorization_terminal_smoke exercises Gain.Compute and
// Factorization.SetTerminal/Propagate end to end on a tiny two-stage
// problem, checking only that the recursion runs and produces a symmetric
// P (no crash, finite values) -- a smoke test for the wiring, not a
// numerical-accuracy check.
func Test_gain_and_factorization_terminal_smoke(tst *testing.T) {
	chk.PrintTitle("gain_and_factorization_terminal_smoke")

	robot := fixedRobot{}
	m := stage.NewKKTMatrix(robot)
	r := stage.NewKKTResidual(robot)
	cs := robotmodel.NewContactStatus(0)
	m.SetContactStatus(cs)
	r.SetContactStatus(cs)
	m.Zero()
	r.Zero()

	for i := 0; i < 2; i++ {
		m.Qaa()[i][i] = 2
		m.Qqq()[i][i] = 1
		m.Qvv()[i][i] = 1
	}
	r.La[0], r.La[1] = 0.1, -0.1

	nv, dimf, np := 2, 0, 0
	n := nv + dimf
	inv := NewMatrixInverter(n, np+dimf)
	ginv, err := inv.Invert(m.Qaa(), m.Cq(), n, np+dimf, nv, 1e-6)
	if err != nil {
		tst.Fatalf("unexpected error: %v", err)
	}

	gain := &Gain{}
	Compute(gain, ginv, nv, dimf, np, m, r)

	next := NewFactorization(nv)
	next.SetTerminal(m, r)

	fqq := identity2(nv)
	fqv := identity2(nv)
	for i := range fqv {
		fqv[i][i] = 0.1
	}

	f := NewFactorization(nv)
	f.Propagate(0.1, nv, dimf, fqq, fqv, gain, m, r, next)

	for i := 0; i < nv; i++ {
		for j := 0; j < nv; j++ {
			d := f.Pqq[i][j] - f.Pqq[j][i]
			if d < -1e-9 || d > 1e-9 {
				tst.Errorf("expected Pqq symmetric, got asymmetry %v at (%d,%d)", d, i, j)
			}
		}
	}
}

func identity2(n int) [][]float64 {
	m := zeros(n, n)
	for i := 0; i < n; i++ {
		m[i][i] = 1
	}
	return m
}

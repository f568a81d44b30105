// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riccati

import "github.com/cpmech/ocprobot/stage"

// Gain holds the feedback gains and feedforward terms recovered from the
// saddle-block inverse at one stage:
//
//	[Ka;Kf;Kmu]  = -Ginv * [Qafqv; Cqv]   (feedback, w.r.t. (q,v))
//	[ka;kf;kmu]  = -Ginv * [La,Lf; C]      (feedforward)
type Gain struct {
	Kaq, Kav   [][]float64 // nv x nv
	Kfq, Kfv   [][]float64 // dimf x nv
	Kmuq, Kmuv [][]float64 // nc x nv

	Ka  []float64 // nv
	Kf  []float64 // dimf
	Kmu []float64 // nc

	M         [][]float64 // (n+nc) x 2nv stacked [Qafqv;Cqv], retained for the
	// Riccati value-function reduction (Factorization.Propagate), which
	// needs Qreduced = Q + M^T*gains rather than recomputing M itself.
	fullGains       [][]float64 // (n+nc) x 2nv, the un-split gains = -Ginv*M
	fullFeedforward []float64   // n+nc, the un-split feedforward = -Ginv*rhs
}

// Compute assembles the stacked cross-Hessian/Jacobian matrix and gradient
// vector from m/r and recovers the gain via ginv (the output of
// MatrixInverter.Invert at matching (n, nc)), writing into g.
func Compute(g *Gain, ginv [][]float64, nv, dimf, np int, m *stage.KKTMatrix, r *stage.KKTResidual) {
	n := nv + dimf
	nc := np + dimf

	stackedA := buildAfqv(nv, dimf, m)
	stackedC := buildCqv(nc, nv, m)

	rhs := la2dStack(stackedA, stackedC, n, nc, 2*nv)
	g.M = rhs
	gains := matMulNeg(ginv, rhs, n+nc, n+nc, 2*nv)
	g.fullGains = gains

	g.Kaq, g.Kav = sliceCols(gains[0:nv], nv)
	g.Kfq, g.Kfv = sliceCols(gains[nv:n], nv)
	g.Kmuq, g.Kmuv = sliceCols(gains[n:n+nc], nv)

	fwdRHS := make([]float64, n+nc)
	copy(fwdRHS[0:nv], r.La)
	copy(fwdRHS[nv:n], r.Lf())
	copy(fwdRHS[n:n+nc], r.C())
	fwd := matVecMulNeg(ginv, fwdRHS, n+nc)
	g.fullFeedforward = fwd

	g.Ka = fwd[0:nv]
	g.Kf = fwd[nv:n]
	g.Kmu = fwd[n : n+nc]
}

// Direction evaluates the forward-pass recovery da = Kaq*dq + Kav*dv + ka
// (and the analogous df, dmu), given this stage's already-determined
// configuration/velocity steps dq, dv.
func (g *Gain) Direction(dq, dv []float64) (da, df, dmu []float64) {
	da = affine(g.Kaq, g.Kav, dq, dv, g.Ka)
	df = affine(g.Kfq, g.Kfv, dq, dv, g.Kf)
	dmu = affine(g.Kmuq, g.Kmuv, dq, dv, g.Kmu)
	return
}

func affine(Kq, Kv [][]float64, dq, dv, k []float64) []float64 {
	out := make([]float64, len(k))
	for i := range out {
		acc := k[i]
		for j := range dq {
			acc += Kq[i][j] * dq[j]
		}
		for j := range dv {
			acc += Kv[i][j] * dv[j]
		}
		out[i] = acc
	}
	return out
}

// buildAfqv stacks the (a,f) x (q,v) cross-Hessian transposed into
// n x 2nv rows ordered (a-rows, f-rows), columns ordered (q, v).
func buildAfqv(nv, dimf int, m *stage.KKTMatrix) [][]float64 {
	n := nv + dimf
	out := make([][]float64, n)
	qqa, qva := m.Qqa(), m.Qva()
	qqf, qvf := m.Qqf(), m.Qvf()
	for i := 0; i < nv; i++ {
		out[i] = make([]float64, 2*nv)
		for j := 0; j < nv; j++ {
			out[i][j] = qqa[j][i]
			out[i][nv+j] = qva[j][i]
		}
	}
	for i := 0; i < dimf; i++ {
		out[nv+i] = make([]float64, 2*nv)
		for j := 0; j < nv; j++ {
			out[nv+i][j] = qqf[j][i]
			out[nv+i][nv+j] = qvf[j][i]
		}
	}
	return out
}

// buildCqv stacks [Cq | Cv] into nc x 2nv rows.
func buildCqv(nc, nv int, m *stage.KKTMatrix) [][]float64 {
	cq, cv := m.Cq(), m.Cv()
	out := make([][]float64, nc)
	for i := 0; i < nc; i++ {
		out[i] = make([]float64, 2*nv)
		copy(out[i][0:nv], cq[i])
		copy(out[i][nv:2*nv], cv[i])
	}
	return out
}

func la2dStack(top, bottom [][]float64, topRows, bottomRows, cols int) [][]float64 {
	out := make([][]float64, topRows+bottomRows)
	copy(out[0:topRows], top)
	copy(out[topRows:topRows+bottomRows], bottom)
	return out
}

func matMulNeg(a, b [][]float64, rows, inner, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			var acc float64
			for k := 0; k < inner; k++ {
				acc += a[i][k] * b[k][j]
			}
			out[i][j] = -acc
		}
	}
	return out
}

func matVecMulNeg(a [][]float64, x []float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var acc float64
		for k := 0; k < n; k++ {
			acc += a[i][k] * x[k]
		}
		out[i] = -acc
	}
	return out
}

// sliceCols splits each row of rows (length 2*nv) into its first-nv and
// second-nv halves.
func sliceCols(rows [][]float64, nv int) (left, right [][]float64) {
	left = make([][]float64, len(rows))
	right = make([][]float64, len(rows))
	for i, row := range rows {
		left[i] = append([]float64(nil), row[:nv]...)
		right[i] = append([]float64(nil), row[nv:2*nv]...)
	}
	return
}

// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riccati

import "github.com/cpmech/ocprobot/stage"

// Factorization holds the backward-propagated value-function approximation
// over (q, v) at one stage boundary, P (the Hessian-of-cost-to-go, as four
// nv x nv blocks since this formulation carries no q-v cross cost term)
// and s (its gradient, split Sq/Sv).
type Factorization struct {
	nv int

	Pqq, Pqv, Pvq, Pvv [][]float64
	Sq, Sv             []float64
}

// NewFactorization allocates a Factorization for nv degrees of freedom.
func NewFactorization(nv int) *Factorization {
	return &Factorization{
		nv:  nv,
		Pqq: zeros(nv, nv), Pqv: zeros(nv, nv), Pvq: zeros(nv, nv), Pvv: zeros(nv, nv),
		Sq: make([]float64, nv), Sv: make([]float64, nv),
	}
}

func zeros(r, c int) [][]float64 {
	m := make([][]float64, r)
	for i := range m {
		m[i] = make([]float64, c)
	}
	return m
}

// SetTerminal initializes the factorization at the horizon's final stage
// from the terminal cost Hessian/gradient alone (no dynamics to propagate
// through yet).
func (f *Factorization) SetTerminal(m *stage.KKTMatrix, r *stage.KKTResidual) {
	copyMat(f.Pqq, m.Qqq())
	copyMat(f.Pvv, m.Qvv())
	zeroMat(f.Pqv)
	zeroMat(f.Pvq)
	copy(f.Sq, r.Lq)
	copy(f.Sv, r.Lv)
}

func copyMat(dst, src [][]float64) {
	for i := range src {
		copy(dst[i], src[i])
	}
}
func zeroMat(m [][]float64) {
	for i := range m {
		for j := range m[i] {
			m[i][j] = 0
		}
	}
}

// Propagate runs one backward Riccati step at a non-terminal stage:
//
//   - reduces the stage's (q,v) cost block by the condensed (a,f,mu)
//     contribution, Qreduced = Q + M^T*gains and lreduced = l + M^T*ff
//     (the standard saddle-point value-function reduction: since gains =
//     -Ginv*M by construction, M^T*gains = -M^T*Ginv*M, the Schur
//     complement eliminated by MatrixInverter/Compute);
//   - builds the closed-loop one-step transition Acl over (q,v), folding
//     the acceleration feedback a = Kaq*dq + Kav*dv + ka into the
//     forward-Euler velocity update (Fv = dv - dv_next + dtau*da = 0 =>
//     dv_next = dv + dtau*da);
//   - backs P and s up through Acl: P_t = Acl^T*P_next*Acl + Qreduced,
//     s_t = Acl^T*(s_next - P_next*bcl) + lreduced, with bcl the
//     feedforward's contribution to the v-row bias, dtau*ka.
func (f *Factorization) Propagate(dtau float64, nv, dimf int, fqq, fqv [][]float64, gain *Gain, m *stage.KKTMatrix, r *stage.KKTResidual, next *Factorization) {
	qred, lred := reduce(nv, dimf, gain, m, r)

	acl := zeros(2*nv, 2*nv)
	for i := 0; i < nv; i++ {
		copy(acl[i][0:nv], fqq[i])
		copy(acl[i][nv:2*nv], fqv[i])
	}
	for i := 0; i < nv; i++ {
		for j := 0; j < nv; j++ {
			acl[nv+i][j] = dtau * gain.Kaq[i][j]
			acl[nv+i][nv+j] = dtau * gain.Kav[i][j]
			if i == j {
				acl[nv+i][nv+j] += 1
			}
		}
	}
	bcl := make([]float64, 2*nv)
	for i := 0; i < nv; i++ {
		bcl[nv+i] = dtau * gain.Ka[i]
	}

	f.propagateCore(nv, acl, bcl, qred, lred, next)
}

// PropagateWithTransition is Propagate generalized to an arbitrary
// closed-loop transition (acl, bcl) supplied by the caller instead of the
// forward-Euler one built internally: ParNMPC's backward-Euler stages
// solve an implicit 2nv system for (dq_i, dv_i) in terms of
// (dq_{i-1}, dv_{i-1}) rather than the explicit forward-Euler map, so they
// compute their own acl/bcl and reuse the same (a,f,mu)-reduction and P/s
// back-substitution as Propagate.
func (f *Factorization) PropagateWithTransition(nv, dimf int, acl [][]float64, bcl []float64, gain *Gain, m *stage.KKTMatrix, r *stage.KKTResidual, next *Factorization) {
	qred, lred := reduce(nv, dimf, gain, m, r)
	f.propagateCore(nv, acl, bcl, qred, lred, next)
}

func (f *Factorization) propagateCore(nv int, acl [][]float64, bcl []float64, qred [][]float64, lred []float64, next *Factorization) {
	pnext := blockMat(next.Pqq, next.Pqv, next.Pvq, next.Pvv, nv)
	snext := concat(next.Sq, next.Sv)

	pnb := matVec(pnext, bcl, 2*nv)
	sMinusPb := subVec(snext, pnb)

	aclT := transposeSq(acl, 2*nv)
	sNew := addVec(matVec(aclT, sMinusPb, 2*nv), lred)
	pNew := matAdd(matMul(aclT, matMul(pnext, acl, 2*nv, 2*nv, 2*nv), 2*nv, 2*nv, 2*nv), qred, 2*nv)

	for i := 0; i < nv; i++ {
		copy(f.Pqq[i], pNew[i][0:nv])
		copy(f.Pqv[i], pNew[i][nv:2*nv])
		copy(f.Pvq[i], pNew[nv+i][0:nv])
		copy(f.Pvv[i], pNew[nv+i][nv:2*nv])
	}
	copy(f.Sq, sNew[0:nv])
	copy(f.Sv, sNew[nv:2*nv])
}

// PropagateTerminal is Propagate's degenerate case for a sub-horizon's last
// node when there is no further dynamics beyond it to propagate through
// (the dual ParNMPC pathway's backward pass at its final stage): it
// eliminates (a,f,mu) via the same Schur-complement reduction
// as Propagate, but writes the reduced (q,v) block straight into P/s
// since there is no next-stage value function to back up through Acl.
func (f *Factorization) PropagateTerminal(nv, dimf int, gain *Gain, m *stage.KKTMatrix, r *stage.KKTResidual) {
	qred, lred := reduce(nv, dimf, gain, m, r)
	for i := 0; i < nv; i++ {
		copy(f.Pqq[i], qred[i][0:nv])
		copy(f.Pqv[i], qred[i][nv:2*nv])
		copy(f.Pvq[i], qred[nv+i][0:nv])
		copy(f.Pvv[i], qred[nv+i][nv:2*nv])
	}
	copy(f.Sq, lred[0:nv])
	copy(f.Sv, lred[nv:2*nv])
}

// reduce returns Qreduced (2nv x 2nv, blocks diag(Qqq,Qvv) since no q-v
// cross cost) and lreduced (2nv) folding in the (a,f,mu) condensation.
func reduce(nv, dimf int, gain *Gain, m *stage.KKTMatrix, r *stage.KKTResidual) ([][]float64, []float64) {
	q := zeros(2*nv, 2*nv)
	copyBlock(q, m.Qqq(), 0, 0)
	copyBlock(q, m.Qvv(), nv, nv)

	mtGains := matMulAtB(gain.M, gain.fullGains, len(gain.M), 2*nv, 2*nv)
	for i := 0; i < 2*nv; i++ {
		for j := 0; j < 2*nv; j++ {
			q[i][j] += mtGains[i][j]
		}
	}

	l := concat(r.Lq, r.Lv)
	mtFF := matVecAtB(gain.M, gain.fullFeedforward, len(gain.M), 2*nv)
	for i := 0; i < 2*nv; i++ {
		l[i] += mtFF[i]
	}
	return q, l
}

func copyBlock(dst, src [][]float64, rowOff, colOff int) {
	for i := range src {
		for j := range src[i] {
			dst[rowOff+i][colOff+j] = src[i][j]
		}
	}
}

func matMulAtB(a, b [][]float64, aRows, aCols, bCols int) [][]float64 {
	out := zeros(aCols, bCols)
	for i := 0; i < aCols; i++ {
		for j := 0; j < bCols; j++ {
			var acc float64
			for k := 0; k < aRows; k++ {
				acc += a[k][i] * b[k][j]
			}
			out[i][j] = acc
		}
	}
	return out
}

func matVecAtB(a [][]float64, x []float64, rows, cols int) []float64 {
	out := make([]float64, cols)
	for j := 0; j < cols; j++ {
		var acc float64
		for k := 0; k < rows; k++ {
			acc += a[k][j] * x[k]
		}
		out[j] = acc
	}
	return out
}

func blockMat(qq, qv, vq, vv [][]float64, nv int) [][]float64 {
	out := zeros(2*nv, 2*nv)
	copyBlock(out, qq, 0, 0)
	copyBlock(out, qv, 0, nv)
	copyBlock(out, vq, nv, 0)
	copyBlock(out, vv, nv, nv)
	return out
}

func concat(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b))
	copy(out, a)
	copy(out[len(a):], b)
	return out
}

func transposeSq(m [][]float64, n int) [][]float64 {
	out := zeros(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}

func matVec(a [][]float64, x []float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var acc float64
		for k := 0; k < n; k++ {
			acc += a[i][k] * x[k]
		}
		out[i] = acc
	}
	return out
}

func subVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func addVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

func matAdd(a, b [][]float64, n int) [][]float64 {
	out := zeros(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i][j] = a[i][j] + b[i][j]
		}
	}
	return out
}

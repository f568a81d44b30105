// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package riccati implements the per-stage saddle-block inversion and
// backward Riccati recursion: the condensed-stage
// analog of `fem/s_implicit.go`'s per-iteration assemble-tangent →
// factorize → solve pattern, generalized from one global sparse
// factorization per Newton iteration to one small dense factorization per
// stage per backward sweep.
package riccati

import (
	"math"

	"github.com/cpmech/gosl/la"
	"github.com/cpmech/ocprobot/solverrors"
)

// MatrixInverter inverts the symmetric saddle block
//
//	[ G   C^T ]
//	[ C    0  ]
//
// where G is the Hessian over (a, f) and C is the equality-constraint
// Jacobian w.r.t. (a, f). Buffers are allocated once at the
// maximum (nv+maxDimf, ncMax) size and reused across stages/iterations.
type MatrixInverter struct {
	n, ncMax int

	greg [][]float64 // regularized copy of G, n x n
	l    [][]float64 // Cholesky factor, n x n
	ginv [][]float64 // G^{-1}, n x n

	ginvCt [][]float64 // G^{-1} C^T, n x ncMax
	s      [][]float64 // Schur complement C G^{-1} C^T, ncMax x ncMax
	sinv   [][]float64 // S^{-1}, ncMax x ncMax

	full [][]float64 // assembled saddle inverse, (n+ncMax) x (n+ncMax)

	Regularized bool // set by the most recent Invert call
}

// NewMatrixInverter allocates a MatrixInverter for the given maximum (a,f)
// dimension n and maximum equality-row count ncMax.
func NewMatrixInverter(n, ncMax int) *MatrixInverter {
	return &MatrixInverter{
		n: n, ncMax: ncMax,
		greg: la.MatAlloc(n, n), l: la.MatAlloc(n, n), ginv: la.MatAlloc(n, n),
		ginvCt: la.MatAlloc(n, ncMax), s: la.MatAlloc(ncMax, ncMax), sinv: la.MatAlloc(ncMax, ncMax),
		full: la.MatAlloc(n+ncMax, n+ncMax),
	}
}

// cholesky computes the lower-triangular Cholesky factor of the leading
// n x n block of A into dst, returning false if A is not (numerically)
// positive definite.
func cholesky(dst, a [][]float64, n int) bool {
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			var sum float64
			for k := 0; k < j; k++ {
				sum += dst[i][k] * dst[j][k]
			}
			if i == j {
				d := a[i][i] - sum
				if d <= 1e-14 {
					return false
				}
				dst[i][j] = math.Sqrt(d)
			} else {
				dst[i][j] = (a[i][j] - sum) / dst[j][j]
			}
		}
		for j := i + 1; j < n; j++ {
			dst[i][j] = 0
		}
	}
	return true
}

// choleskyInverse solves L L^T X = I for X given L's lower-triangular
// Cholesky factor, writing the n x n inverse into dst.
func choleskyInverse(dst, l [][]float64, n int) {
	y := make([]float64, n)
	e := make([]float64, n)
	for col := 0; col < n; col++ {
		for i := range e {
			e[i] = 0
		}
		e[col] = 1
		// forward solve L y = e
		for i := 0; i < n; i++ {
			sum := e[i]
			for k := 0; k < i; k++ {
				sum -= l[i][k] * y[k]
			}
			y[i] = sum / l[i][i]
		}
		// back solve L^T x = y
		for i := n - 1; i >= 0; i-- {
			sum := y[i]
			for k := i + 1; k < n; k++ {
				sum -= l[k][i] * dst[k][col]
			}
			dst[i][col] = sum / l[i][i]
		}
	}
}

func matMul(a, b [][]float64, rows, inner, cols int) [][]float64 {
	out := la.MatAlloc(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			var acc float64
			for k := 0; k < inner; k++ {
				acc += a[i][k] * b[k][j]
			}
			out[i][j] = acc
		}
	}
	return out
}

// Invert factorizes the saddle block for G (n x n over the active (a,f)
// dimension) and C (nc x n), storing and returning the assembled
// (n+nc) x (n+nc) inverse. navSplit is the row index within G/C at which
// the f-block begins (i.e. nv, the size of a); an ε·I regularizer is
// added only to the f-block diagonal on Cholesky failure, retried once.
func (inv *MatrixInverter) Invert(G, C [][]float64, n, nc, navSplit int, eps float64) ([][]float64, error) {
	inv.Regularized = false
	ok := cholesky(inv.l, G, n)
	if !ok {
		for i := 0; i < n; i++ {
			copy(inv.greg[i][:n], G[i][:n])
		}
		for i := navSplit; i < n; i++ {
			inv.greg[i][i] += eps
		}
		ok = cholesky(inv.l, inv.greg, n)
		inv.Regularized = true
		if !ok {
			return nil, solverrors.New(solverrors.FactorizationFailed,
				"riccati: MatrixInverter: Cholesky of G failed even after epsilon regularization")
		}
	}
	choleskyInverse(inv.ginv, inv.l, n)

	if nc == 0 {
		for i := 0; i < n; i++ {
			copy(inv.full[i][:n], inv.ginv[i][:n])
		}
		return subview(inv.full, n), nil
	}

	ct := transpose(C, nc, n)
	ginvCt := matMul(inv.ginv, ct, n, n, nc)
	s := matMul(C, ginvCt, nc, n, nc)
	if !cholesky(inv.l[:nc], s, nc) {
		return nil, solverrors.New(solverrors.FactorizationFailed,
			"riccati: MatrixInverter: Schur complement factorization failed")
	}
	sinv := la.MatAlloc(nc, nc)
	choleskyInverse(sinv, inv.l, nc)
	for i := 0; i < nc; i++ {
		for j := nc; j < n; j++ {
			inv.l[i][j] = 0 // scratch l reused at size nc; zero the unused tail
		}
	}

	ginvCtSinv := matMul(ginvCt, sinv, n, nc, nc)
	topLeft := matMul(ginvCtSinv, transpose(ginvCt, n, nc), n, nc, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			inv.full[i][j] = inv.ginv[i][j] - topLeft[i][j]
		}
		for j := 0; j < nc; j++ {
			inv.full[i][n+j] = ginvCtSinv[i][j]
			inv.full[n+j][i] = ginvCtSinv[i][j]
		}
	}
	for i := 0; i < nc; i++ {
		for j := 0; j < nc; j++ {
			inv.full[n+i][n+j] = -sinv[i][j]
		}
	}
	return subview(inv.full, n+nc), nil
}

func transpose(m [][]float64, rows, cols int) [][]float64 {
	out := la.MatAlloc(cols, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}

func subview(full [][]float64, n int) [][]float64 {
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = full[i][:n]
	}
	return out
}

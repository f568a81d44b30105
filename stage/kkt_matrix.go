// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stage

import (
	"github.com/cpmech/gosl/la"
	"github.com/cpmech/ocprobot/robotmodel"
)

// KKTMatrix is the per-stage block matrix over (lmd, gmm, mu, a, f, q, v).
// Every block is allocated once at its maximum capacity (nv or nv+maxDimf)
// and viewed at its current logical size via sub-slicing, never
// reallocated; see fem/domain.go's pre-sized Kb triplet for the analogous
// one-time-allocate/reuse pattern (there realized with a sparse
// la.Triplet, here with small dense per-stage blocks since G has size at
// most nv+max_dimf).
type KKTMatrix struct {
	nv, np, maxDimf int
	dimf            int

	fqqFull, fqvFull [][]float64 // state-equation Jacobians, nv x nv

	qaaFull, qffFull         [][]float64 // nv x nv, maxDimf x maxDimf
	qqqFull, qvvFull         [][]float64 // nv x nv
	qqaFull, qvaFull         [][]float64 // nv x nv
	qqfFull, qvfFull, qafFull [][]float64 // nv x maxDimf

	cqFull, cvFull, caFull [][]float64 // (np+maxDimf) x nv
	cfFull                 [][]float64 // (np+maxDimf) x maxDimf
}

// NewKKTMatrix allocates a KKTMatrix for robot's dimensions.
func NewKKTMatrix(robot robotmodel.Model) *KKTMatrix {
	nv, np := robot.Dimv(), robot.DimPassive()
	maxDimf := 3 * robot.MaxPointContacts()
	ncMax := np + maxDimf
	return &KKTMatrix{
		nv: nv, np: np, maxDimf: maxDimf,
		fqqFull: la.MatAlloc(nv, nv), fqvFull: la.MatAlloc(nv, nv),
		qaaFull: la.MatAlloc(nv, nv), qffFull: la.MatAlloc(maxDimf, maxDimf),
		qqqFull: la.MatAlloc(nv, nv), qvvFull: la.MatAlloc(nv, nv),
		qqaFull: la.MatAlloc(nv, nv), qvaFull: la.MatAlloc(nv, nv),
		qqfFull: la.MatAlloc(nv, maxDimf), qvfFull: la.MatAlloc(nv, maxDimf), qafFull: la.MatAlloc(nv, maxDimf),
		cqFull: la.MatAlloc(ncMax, nv), cvFull: la.MatAlloc(ncMax, nv), caFull: la.MatAlloc(ncMax, nv),
		cfFull: la.MatAlloc(ncMax, maxDimf),
	}
}

// SetContactStatus rebinds every block's logical view to cs.Dimf().
func (k *KKTMatrix) SetContactStatus(cs robotmodel.ContactStatus) {
	k.dimf = cs.Dimf()
}

func view(full [][]float64, rows, cols int) [][]float64 {
	out := full[:rows]
	v := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		v[i] = out[i][:cols]
	}
	return v
}

// Fqq is ∂(q ⊖ q_next)/∂q, the manifold state-equation Jacobian, nv x nv.
func (k *KKTMatrix) Fqq() [][]float64 { return view(k.fqqFull, k.nv, k.nv) }

// Fqv is ∂integrate/∂v · dtau, nv x nv.
func (k *KKTMatrix) Fqv() [][]float64 { return view(k.fqvFull, k.nv, k.nv) }

func (k *KKTMatrix) Qaa() [][]float64 { return view(k.qaaFull, k.nv, k.nv) }
func (k *KKTMatrix) Qff() [][]float64 { return view(k.qffFull, k.dimf, k.dimf) }
func (k *KKTMatrix) Qqq() [][]float64 { return view(k.qqqFull, k.nv, k.nv) }
func (k *KKTMatrix) Qvv() [][]float64 { return view(k.qvvFull, k.nv, k.nv) }
func (k *KKTMatrix) Qqa() [][]float64 { return view(k.qqaFull, k.nv, k.nv) }
func (k *KKTMatrix) Qva() [][]float64 { return view(k.qvaFull, k.nv, k.nv) }
func (k *KKTMatrix) Qqf() [][]float64 { return view(k.qqfFull, k.nv, k.dimf) }
func (k *KKTMatrix) Qvf() [][]float64 { return view(k.qvfFull, k.nv, k.dimf) }
func (k *KKTMatrix) Qaf() [][]float64 { return view(k.qafFull, k.nv, k.dimf) }

// Cq, Cv, Ca, Cf are the equality-constraint Jacobians: passive-DoF rows
// (underactuation) stacked above active-contact-acceleration rows,
// logical size (np+dimf) x {nv, nv, nv, dimf}.
func (k *KKTMatrix) nc() int { return k.np + k.dimf }

func (k *KKTMatrix) Cq() [][]float64 { return view(k.cqFull, k.nc(), k.nv) }
func (k *KKTMatrix) Cv() [][]float64 { return view(k.cvFull, k.nc(), k.nv) }
func (k *KKTMatrix) Ca() [][]float64 { return view(k.caFull, k.nc(), k.nv) }
func (k *KKTMatrix) Cf() [][]float64 { return view(k.cfFull, k.nc(), k.dimf) }

// Zero zeros every block's logical view.
func (k *KKTMatrix) Zero() {
	for _, m := range [][][]float64{
		k.Fqq(), k.Fqv(), k.Qaa(), k.Qff(), k.Qqq(), k.Qvv(),
		k.Qqa(), k.Qva(), k.Qqf(), k.Qvf(), k.Qaf(),
		k.Cq(), k.Cv(), k.Ca(), k.Cf(),
	} {
		zeroMat(m)
	}
}

func zeroMat(m [][]float64) {
	for i := range m {
		for j := range m[i] {
			m[i][j] = 0
		}
	}
}

// SymmetricAfterAssembly reports whether every symmetric block (Qaa, Qff,
// Qqq, Qvv) is symmetric to tol, an invariant that must hold on exit of
// stage assembly.
func (k *KKTMatrix) SymmetricAfterAssembly(tol float64) bool {
	return isSym(k.Qaa(), tol) && isSym(k.Qff(), tol) && isSym(k.Qqq(), tol) && isSym(k.Qvv(), tol)
}

func isSym(m [][]float64, tol float64) bool {
	n := len(m)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := m[i][j] - m[j][i]
			if d < 0 {
				d = -d
			}
			if d > tol {
				return false
			}
		}
	}
	return true
}

// SymmetrizeLowerFromUpper copies the upper triangle of every symmetric
// block into its lower triangle; call once assembly of all additive
// component contributions (which may only populate the upper triangle, as
// components never zero existing entries) is complete.
func (k *KKTMatrix) SymmetrizeLowerFromUpper() {
	for _, m := range [][][]float64{k.Qaa(), k.Qff(), k.Qqq(), k.Qvv()} {
		symmetrize(m)
	}
}

func symmetrize(m [][]float64) {
	n := len(m)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			m[j][i] = m[i][j]
		}
	}
}

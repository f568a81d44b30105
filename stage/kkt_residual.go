// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stage

import (
	"math"

	"github.com/cpmech/gosl/la"
	"github.com/cpmech/ocprobot/robotmodel"
)

// KKTResidual is the per-stage residual/gradient container: dynamics
// residual (Fq, Fv), equality residual (C), cost gradients (la, lf, lq, lv,
// lu), and the inverse-dynamics residual (u_res).
type KKTResidual struct {
	np, maxDimf int
	dimf        int

	Fq, Fv []float64 // dynamics residual, size nv each
	cFull  []float64 // equality residual, capacity np+maxDimf

	La, Lq, Lv, Lu []float64 // gradients, size nv each
	lfFull         []float64 // gradient w.r.t. f, capacity maxDimf

	Ures []float64 // inverse-dynamics residual, size nv
}

// NewKKTResidual allocates a KKTResidual for robot's dimensions.
func NewKKTResidual(robot robotmodel.Model) *KKTResidual {
	nv, np := robot.Dimv(), robot.DimPassive()
	maxDimf := 3 * robot.MaxPointContacts()
	return &KKTResidual{
		np: np, maxDimf: maxDimf,
		Fq: make([]float64, nv), Fv: make([]float64, nv),
		cFull: make([]float64, np+maxDimf),
		La:    make([]float64, nv), Lq: make([]float64, nv),
		Lv: make([]float64, nv), Lu: make([]float64, nv),
		lfFull: make([]float64, maxDimf),
		Ures:   make([]float64, nv),
	}
}

// SetContactStatus rebinds the logical size of C and Lf.
func (r *KKTResidual) SetContactStatus(cs robotmodel.ContactStatus) {
	r.dimf = cs.Dimf()
}

// C is the logical equality residual view, size np+dimf.
func (r *KKTResidual) C() []float64 { return r.cFull[:r.np+r.dimf] }

// Lf is the logical gradient-w.r.t.-force view, size dimf.
func (r *KKTResidual) Lf() []float64 { return r.lfFull[:r.dimf] }

// Zero zeros every logical view.
func (r *KKTResidual) Zero() {
	la.VecFill(r.Fq, 0)
	la.VecFill(r.Fv, 0)
	la.VecFill(r.C(), 0)
	la.VecFill(r.La, 0)
	la.VecFill(r.Lf(), 0)
	la.VecFill(r.Lq, 0)
	la.VecFill(r.Lv, 0)
	la.VecFill(r.Lu, 0)
	la.VecFill(r.Ures, 0)
}

// ViolationL1Norm returns ‖Fq‖₁ + ‖Fv‖₁, the discrete dynamics feasibility
// violation at this stage.
func ViolationL1Norm(fq, fv []float64) float64 {
	var sum float64
	for _, x := range fq {
		sum += math.Abs(x)
	}
	for _, x := range fv {
		sum += math.Abs(x)
	}
	return sum
}

// SquaredKKTErrorNorm returns ‖Fq‖² + ‖Fv‖² + ‖C‖² + ‖la‖² + ‖lf‖² + ‖lq‖²
// + ‖lv‖² + ‖lu‖² + ‖u_res‖², the stage's contribution to the condensed KKT
// error reported by OCP.KKTError.
func (r *KKTResidual) SquaredKKTErrorNorm() float64 {
	sq := func(v []float64) float64 {
		var s float64
		for _, x := range v {
			s += x * x
		}
		return s
	}
	return sq(r.Fq) + sq(r.Fv) + sq(r.C()) + sq(r.La) + sq(r.Lf()) +
		sq(r.Lq) + sq(r.Lv) + sq(r.Lu) + sq(r.Ures)
}

// blocks concatenates every residual block into one scratch slice, the
// same flattened shape gofem's s_implicit.go builds its Fb residual
// vector in before handing it to la.VecLargest.
func (r *KKTResidual) blocks() []float64 {
	out := make([]float64, 0, 2*len(r.Fq)+len(r.C())+4*len(r.La)+len(r.Lf())+len(r.Ures))
	out = append(out, r.Fq...)
	out = append(out, r.Fv...)
	out = append(out, r.C()...)
	out = append(out, r.La...)
	out = append(out, r.Lf()...)
	out = append(out, r.Lq...)
	out = append(out, r.Lv...)
	out = append(out, r.Lu...)
	out = append(out, r.Ures...)
	return out
}

// LargestResidual returns the largest-magnitude residual component across
// every block this stage carries, the same cheap convergence proxy
// fem/s_implicit.go computes as largFb = la.VecLargest(d.Fb, 1).
func (r *KKTResidual) LargestResidual() float64 {
	return la.VecLargest(r.blocks(), 1)
}

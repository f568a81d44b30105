// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stage

import "github.com/cpmech/ocprobot/robotmodel"

// SplitDirection holds the Newton step for one stage; it mirrors
// SplitSolution's layout exactly so that d.Lmd, d.Gmm, ... can be added
// directly into the corresponding SplitSolution fields by the forward pass.
type SplitDirection struct {
	*SplitSolution
}

// NewSplitDirection allocates a SplitDirection with the same capacity as a
// SplitSolution for the same robot.
func NewSplitDirection(robot robotmodel.Model) *SplitDirection {
	return &SplitDirection{SplitSolution: NewSplitSolution(robot)}
}

// Block returns the flattened linearized-block view of length DimKKT(),
// ordered (dlmd, dgmm, dmu, da, df, dq, dv): costates first (2*nv),
// equality multipliers (np+dimf), then primal blocks (a, f, q, v).
func (d *SplitDirection) Block() []float64 {
	n := d.DimKKT()
	out := make([]float64, 0, n)
	out = append(out, d.Lmd...)
	out = append(out, d.Gmm...)
	out = append(out, d.Muview()...)
	out = append(out, d.A...)
	out = append(out, d.Fview()...)
	out = append(out, d.Q...)
	out = append(out, d.V...)
	return out
}

// AddTo adds step*d into the corresponding SplitSolution buffers of s,
// used by the forward pass to apply a fraction-to-boundary-scaled step.
func (d *SplitDirection) AddTo(s *SplitSolution, step float64) {
	axpy(s.Lmd, step, d.Lmd)
	axpy(s.Gmm, step, d.Gmm)
	axpy(s.Muview(), step, d.Muview())
	axpy(s.A, step, d.A)
	axpy(s.Fview(), step, d.Fview())
	axpy(s.Q, step, d.Q)
	axpy(s.V, step, d.V)
	axpy(s.U, step, d.U)
	axpy(s.Beta, step, d.Beta)
}

func axpy(y []float64, alpha float64, x []float64) {
	n := len(y)
	if len(x) < n {
		n = len(x)
	}
	for i := 0; i < n; i++ {
		y[i] += alpha * x[i]
	}
}

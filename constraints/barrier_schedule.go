// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import "github.com/cpmech/gosl/fun"

// BarrierSchedule decays a shared log-barrier parameter geometrically
// across outer Newton iterations, flooring it softly rather than with a
// hard max — the same smoothed-clip idea fem/e_u_contact.go applies to a
// contact force through contact_ramp/contact_rampD1, picking between a
// hard fun.Ramp Macaulay bracket and the smoothed fun.Sramp one. Here the
// floor clip always uses the smoothed form so that mu's derivative stays
// continuous across the transition, which matters because a barrier jump
// mid-horizon would otherwise show up as a kink in the condensed Hessian
// between two consecutive outer iterations.
type BarrierSchedule struct {
	DecayRate float64 // mu_{k+1} = DecayRate * mu_k before flooring; 0 disables decay
	Floor     float64
	Width     float64 // smoothing width; fun.Sramp is called with beta = 1/Width
}

// Next returns the schedule's barrier value for the iteration following
// one where the shared barrier was mu, or mu unchanged if DecayRate is 0.
func (b BarrierSchedule) Next(mu float64) float64 {
	if b.DecayRate == 0 {
		return mu
	}
	return SmoothBarrierFloor(b.DecayRate*mu, b.Floor, b.Width)
}

// SmoothBarrierFloor enforces raw >= floor the way fun.Sramp smooths a
// hard Ramp/Macaulay bracket: floor + Sramp(raw-floor, 1/width) never
// drops below floor, equals floor exactly once raw is more than 500*width
// below it (fun.Sramp's cutoff), tracks raw once raw is many widths above
// it, and blends smoothly within a few widths of raw == floor, rather than
// kinking there the way math.Max would.
func SmoothBarrierFloor(raw, floor, width float64) float64 {
	return floor + fun.Sramp(raw-floor, 1/width)
}

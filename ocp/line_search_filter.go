// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocp

// LineSearchFilter accepts or rejects a trial (cost, violation) pair
// against the set of previously accepted pairs, a filter line search.
// A trial is acceptable only if it sufficiently improves
// cost or sufficiently improves feasibility against every stored pair;
// accepted pairs that are dominated by the new one are pruned.
type LineSearchFilter struct {
	pairs            []pair
	gammaCost        float64
	gammaViolation   float64
}

type pair struct {
	cost, violation float64
}

// NewLineSearchFilter returns an empty filter with the given cost/violation
// margins (typically both ≈1e-5).
func NewLineSearchFilter(gammaCost, gammaViolation float64) *LineSearchFilter {
	return &LineSearchFilter{gammaCost: gammaCost, gammaViolation: gammaViolation}
}

// Reset empties the filter; called at the start of every outer iteration.
func (f *LineSearchFilter) Reset() { f.pairs = f.pairs[:0] }

// IsAcceptable reports whether (cost, violation) is not dominated by any
// stored pair: for every stored (c, v), the trial must either cost less
// than c by gammaCost*v, or violate less than v by gammaViolation*v.
func (f *LineSearchFilter) IsAcceptable(cost, violation float64) bool {
	for _, p := range f.pairs {
		costOK := cost <= p.cost-f.gammaCost*p.violation
		violOK := violation <= (1-f.gammaViolation)*p.violation
		if !costOK && !violOK {
			return false
		}
	}
	return true
}

// Augment records (cost, violation) as accepted, dropping any previously
// stored pair the new one dominates (both axes weakly better).
func (f *LineSearchFilter) Augment(cost, violation float64) {
	kept := f.pairs[:0]
	for _, p := range f.pairs {
		if cost <= p.cost && violation <= p.violation {
			continue // new pair dominates p; drop p
		}
		kept = append(kept, p)
	}
	f.pairs = append(kept, pair{cost: cost, violation: violation})
}

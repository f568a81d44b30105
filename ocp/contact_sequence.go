// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ocp assembles the per-stage cost/constraint/dynamics operators
// (costfunc, constraints, dynamics, riccati) into the finite-horizon
// optimal control problem and drives the primal-dual interior-point
// Newton loop over it, the rigid-body analog of fem/solver.go's
// FEsolver/Domain.Run time loop.
package ocp

import "github.com/cpmech/ocprobot/robotmodel"

// ContactSequence is the per-stage schedule of which point contacts are
// active over the horizon.
type ContactSequence struct {
	statuses []robotmodel.ContactStatus
}

// NewContactSequence returns a ContactSequence of length n, every stage
// initialized to initial (a Clone is taken per stage so later per-stage
// mutation via Set never aliases).
func NewContactSequence(n int, initial robotmodel.ContactStatus) *ContactSequence {
	statuses := make([]robotmodel.ContactStatus, n)
	for i := range statuses {
		statuses[i] = initial.Clone()
	}
	return &ContactSequence{statuses: statuses}
}

// N returns the number of stages this sequence covers.
func (c *ContactSequence) N() int { return len(c.statuses) }

// At returns stage t's contact status.
func (c *ContactSequence) At(t int) robotmodel.ContactStatus { return c.statuses[t] }

// Set overwrites stage t's contact status.
func (c *ContactSequence) Set(t int, cs robotmodel.ContactStatus) { c.statuses[t] = cs }

// SwitchesAt reports whether the contact status differs between stage t
// and stage t+1, i.e. whether a contact activates or deactivates crossing
// that stage boundary. Dimension changes at a switch must never
// reallocate buffers, only rebind logical views.
func (c *ContactSequence) SwitchesAt(t int) bool {
	if t+1 >= len(c.statuses) {
		return false
	}
	return !c.statuses[t].Equal(c.statuses[t+1])
}

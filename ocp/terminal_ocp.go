// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocp

import (
	"github.com/cpmech/ocprobot/costfunc"
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// TerminalOCP is the final-stage analog of SplitOCP: terminal cost only,
// no dynamics or inequality constraints.
type TerminalOCP struct {
	cost *costfunc.CostFunction
}

// NewTerminalOCP wraps the terminal cost.
func NewTerminalOCP(cost *costfunc.CostFunction) *TerminalOCP { return &TerminalOCP{cost: cost} }

// Assemble zeros m/r's logical views and linearizes the terminal cost.
func (o *TerminalOCP) Assemble(robot robotmodel.Model, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) {
	m.Zero()
	r.Zero()
	o.cost.LinearizeTerminal(robot, s, m, r)
	m.SymmetrizeLowerFromUpper()
}

// CostValue returns the terminal cost at s.
func (o *TerminalOCP) CostValue(robot robotmodel.Model, s *stage.SplitSolution) float64 {
	return o.cost.Phi(robot, s)
}

// Augment folds the terminal cost's linearization into m/r without zeroing
// them first, for ParNMPC's backward stage at t == N, where
// SplitOCP.AssembleBackward has already written the stage's own dynamics/
// constraint terms into the same m/r and the terminal cost's Qqq/Qvv/Lq/Lv
// contributions must add on top rather than replace them.
func (o *TerminalOCP) Augment(robot robotmodel.Model, s *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) {
	o.cost.LinearizeTerminal(robot, s, m, r)
	m.SymmetrizeLowerFromUpper()
}

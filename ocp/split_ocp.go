// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocp

import (
	"github.com/cpmech/gosl/la"
	"github.com/cpmech/ocprobot/constraints"
	"github.com/cpmech/ocprobot/costfunc"
	"github.com/cpmech/ocprobot/dynamics"
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/stage"
)

// SplitOCP bundles one stage's cost, constraints, and dynamics operators
// and runs the full assemble/condense pipeline in the order the backward
// Riccati pass needs: cost linearization, constraint
// augmentation/condensation, state-equation residual/Jacobians, inverse-
// dynamics residual/Jacobians, torque condensation. Every stage in the
// horizon gets its own SplitOCP (own RobotDynamics scratch buffers, own
// ContactComplementarity instance) so that ocp.OCP can assemble stages
// concurrently via the parallel worker pool without aliasing.
type SplitOCP struct {
	cost         *costfunc.CostFunction
	cstr         *constraints.Constraints
	torqueLimits []*constraints.TorqueBoxLimit
	dyn          *dynamics.RobotDynamics
	stateEq      dynamics.StateEquation

	quuBuf [][]float64 // nv x nv scratch, reused every call
}

// NewSplitOCP builds a SplitOCP for one stage. torqueLimits must be the
// same TorqueBoxLimit instances already Push-ed into cstr, kept separately
// so their condensed Quu contributions (which never touch KKTMatrix
// directly, see constraints/joint_torque_limit.go) can be folded in
// alongside the cost's own Quu before dynamics.RobotDynamics.Condense.
func NewSplitOCP(robot robotmodel.Model, cost *costfunc.CostFunction, cstr *constraints.Constraints, torqueLimits []*constraints.TorqueBoxLimit) *SplitOCP {
	nv := robot.Dimv()
	return &SplitOCP{
		cost: cost, cstr: cstr, torqueLimits: torqueLimits,
		dyn: dynamics.NewRobotDynamics(robot), quuBuf: la.MatAlloc(nv, nv),
	}
}

// Assemble zeros m/r's logical views, runs cost/constraint/dynamics
// linearization and condensation, and leaves m symmetrized. sNext is the
// next stage's solution (needed for the forward-Euler state equation);
// at the terminal stage callers use TerminalOCP instead.
func (o *SplitOCP) Assemble(robot robotmodel.Model, dtau float64, s, sNext *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) error {
	m.Zero()
	r.Zero()

	o.cost.Linearize(robot, dtau, s, m, r)

	o.cstr.AugmentDualResidual(robot, dtau, s, r)
	o.cstr.CondenseSlackAndDual(robot, dtau, s, m, r)

	o.stateEq.Forward(robot, dtau, s, sNext, r)
	o.stateEq.ForwardAdjoint(s, sNext, dtau, r)
	o.stateEq.ForwardJacobians(robot, dtau, s, sNext, m)

	o.dyn.ComputeResidual(robot, s, r)
	o.dyn.ComputeJacobians(robot, s)
	o.dyn.CondenseEquality(robot, dtau, s, m, r)

	zeroMat(o.quuBuf)
	o.cost.Quu(robot, dtau, s, o.quuBuf)
	for _, t := range o.torqueLimits {
		addInto(o.quuBuf, t.Quu())
	}
	o.dyn.Condense(s, o.quuBuf, m, r)

	m.SymmetrizeLowerFromUpper()
	return nil
}

func zeroMat(m [][]float64) {
	for i := range m {
		for j := range m[i] {
			m[i][j] = 0
		}
	}
}

func addInto(dst, src [][]float64) {
	for i := range src {
		for j := range src[i] {
			dst[i][j] += src[i][j]
		}
	}
}

// AssembleBackward is Assemble's backward-Euler counterpart, used
// by ParNMPC: sPrev is the previous stage's solution (the
// implicit-in-v state equation advances q off sPrev.Q using s.V, see
// dynamics.StateEquation.Backward); sNext is the next stage's solution,
// or nil at the horizon's terminal boundary.
func (o *SplitOCP) AssembleBackward(robot robotmodel.Model, dtau float64, sPrev, s, sNext *stage.SplitSolution, m *stage.KKTMatrix, r *stage.KKTResidual) error {
	m.Zero()
	r.Zero()

	o.cost.Linearize(robot, dtau, s, m, r)

	o.cstr.AugmentDualResidual(robot, dtau, s, r)
	o.cstr.CondenseSlackAndDual(robot, dtau, s, m, r)

	o.stateEq.Backward(robot, dtau, sPrev, s, r)
	o.stateEq.BackwardAdjoint(robot, dtau, sPrev, s, sNext, r)
	o.stateEq.BackwardJacobians(robot, dtau, sPrev, s, m)

	o.dyn.ComputeResidual(robot, s, r)
	o.dyn.ComputeJacobians(robot, s)
	o.dyn.CondenseEquality(robot, dtau, s, m, r)

	zeroMat(o.quuBuf)
	o.cost.Quu(robot, dtau, s, o.quuBuf)
	for _, t := range o.torqueLimits {
		addInto(o.quuBuf, t.Quu())
	}
	o.dyn.Condense(s, o.quuBuf, m, r)

	m.SymmetrizeLowerFromUpper()
	return nil
}

// TorqueDirection forwards to dynamics.RobotDynamics.TorqueDirection,
// giving the caller the first-order torque step consistent with the
// Gain-recovered (da, df) for this stage's most recently assembled point.
func (o *SplitOCP) TorqueDirection(dq, dv, da, df []float64) []float64 {
	return o.dyn.TorqueDirection(dq, dv, da, df)
}

// TorqueFeedbackGain forwards to dynamics.RobotDynamics.StateFeedbackGain,
// recovering this stage's post-Riccati torque feedback gains Kuq, Kuv from
// its acceleration/contact-force gains Kaq, Kav, Kfq, Kfv. Exposed so a
// receding-horizon controller can read the linear feedback law
// u = u0 + Kuq*(q-q0) + Kuv*(v-v0) around the solved trajectory without
// re-solving the horizon every control tick.
func (o *SplitOCP) TorqueFeedbackGain(dimf int, Kaq, Kav, Kfq, Kfv [][]float64) (Kuq, Kuv [][]float64) {
	return o.dyn.StateFeedbackGain(dimf, Kaq, Kav, Kfq, Kfv)
}

// IsFeasible reports whether s satisfies every inequality this stage
// carries.
func (o *SplitOCP) IsFeasible(robot robotmodel.Model, s *stage.SplitSolution) bool {
	return o.cstr.IsFeasible(robot, s)
}

// InitializeSlackAndDual sets every inequality component's slack/dual for
// the given (possibly infeasible) initial iterate.
func (o *SplitOCP) InitializeSlackAndDual(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) {
	o.cstr.SetSlackAndDual(robot, dtau, s)
}

// ComputeSlackAndDualDirection fills d's slack/dual step given the just-
// computed primal-dual Newton step d.
func (o *SplitOCP) ComputeSlackAndDualDirection(robot robotmodel.Model, dtau float64, s *stage.SplitSolution, d *stage.SplitDirection) {
	o.cstr.ComputeSlackAndDualDirection(robot, dtau, s, d)
}

// MaxSlackStepSize and MaxDualStepSize are this stage's fraction-to-
// boundary bounds.
func (o *SplitOCP) MaxSlackStepSize() float64 { return o.cstr.MaxSlackStepSize() }
func (o *SplitOCP) MaxDualStepSize() float64  { return o.cstr.MaxDualStepSize() }

// CostValue returns this stage's cost contribution, including the
// constraint stack's log-barrier term.
func (o *SplitOCP) CostValue(robot robotmodel.Model, dtau float64, s *stage.SplitSolution) float64 {
	return o.cost.L(robot, dtau, s) + o.cstr.CostBarrier()
}

// Violation returns this stage's feasibility violation: dynamics residual
// plus equality residual plus inequality primal/duality residual.
func (o *SplitOCP) Violation(r *stage.KKTResidual) float64 {
	return dynamics.ViolationL1Norm(r.Fq, r.Fv) + l1Norm(r.C()) + o.cstr.ResidualL1Norm()
}

// SquaredKKTError returns this stage's contribution to OCP.KKTError.
func (o *SplitOCP) SquaredKKTError(r *stage.KKTResidual) float64 {
	return r.SquaredKKTErrorNorm() + o.cstr.SquaredKKTErrorNorm()
}

// SetBarrier updates the shared log-barrier parameter.
func (o *SplitOCP) SetBarrier(mu float64) { o.cstr.SetBarrier(mu) }

func l1Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		if x < 0 {
			x = -x
		}
		sum += x
	}
	return sum
}

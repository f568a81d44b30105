// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocp

import (
	"math"

	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/la"
	"github.com/cpmech/ocprobot/constraints"
	"github.com/cpmech/ocprobot/parallel"
	"github.com/cpmech/ocprobot/riccati"
	"github.com/cpmech/ocprobot/robotmodel"
	"github.com/cpmech/ocprobot/solverrors"
	"github.com/cpmech/ocprobot/stage"
)

// OCP drives the finite-horizon primal-dual interior-point Newton loop:
// ASSEMBLE -> FACTORIZE -> DIRECTION -> STEP_SIZE ->
// LINE_SEARCH -> UPDATE, repeated until the KKT error falls below
// tolerance or the iteration budget is exhausted. Grounded on
// fem/s_implicit.go's run_iterations Newton loop (assemble residual/
// tangent, factorize, solve, line-search-free update there; here gaining
// a filter line search and a condensed Riccati factorization in place of
// a single global sparse solve).
type OCP struct {
	robot   robotmodel.Model
	N       int
	dtau    float64
	nv, np  int
	maxDimf int

	stages   []*SplitOCP
	terminal *TerminalOCP
	contacts *ContactSequence

	sol  []*stage.SplitSolution
	dir  []*stage.SplitDirection
	mats []*stage.KKTMatrix
	res  []*stage.KKTResidual

	inv   []*riccati.MatrixInverter
	gains []*riccati.Gain
	fact  []*riccati.Factorization

	filter      *LineSearchFilter
	pool        *parallel.Pool
	KKTTol      float64
	MaxIters    int
	MinStepSize float64
	Verbose     bool

	// Atol, Rtol scale StepRmsError's per-component tolerance, the same
	// absolute/relative pair fem/s_implicit.go's Lδu = la.VecRmsErr(...)
	// convergence check takes.
	Atol, Rtol float64

	// Barrier is the shared log-barrier parameter mu, mirrored into every
	// stage's Constraints stack via SetBarrier. Schedule decays it across
	// outer iterations when Schedule.DecayRate != 0; left at its zero
	// value, Barrier is never touched and every stage keeps whatever
	// fixed barrier its stageFactory built it with.
	Barrier  float64
	Schedule constraints.BarrierSchedule
}

// NewOCP allocates an OCP over N stages of duration dtau each, building
// one SplitOCP per stage via stageFactory (so each gets independent
// RobotDynamics/Constraints buffers) and one terminal-cost handler.
// numProc sizes the worker pool used for the (embarrassingly parallel)
// per-stage assembly phase; the backward Riccati recursion itself stays
// sequential.
func NewOCP(robot robotmodel.Model, N int, dtau float64, contacts *ContactSequence, stageFactory func(t int) *SplitOCP, terminal *TerminalOCP, numProc int) *OCP {
	nv, np := robot.Dimv(), robot.DimPassive()
	maxDimf := 3 * robot.MaxPointContacts()

	o := &OCP{
		robot: robot, N: N, dtau: dtau, nv: nv, np: np, maxDimf: maxDimf,
		terminal: terminal, contacts: contacts,
		filter: NewLineSearchFilter(1e-5, 1e-5), pool: parallel.NewPool(numProc),
		KKTTol: 1e-6, MaxIters: 50, MinStepSize: 1e-8,
		Atol: 1e-8, Rtol: 1e-6,
	}
	o.stages = make([]*SplitOCP, N)
	o.sol = make([]*stage.SplitSolution, N+1)
	o.dir = make([]*stage.SplitDirection, N+1)
	o.mats = make([]*stage.KKTMatrix, N+1)
	o.res = make([]*stage.KKTResidual, N+1)
	o.inv = make([]*riccati.MatrixInverter, N)
	o.gains = make([]*riccati.Gain, N)
	o.fact = make([]*riccati.Factorization, N+1)
	for t := 0; t <= N; t++ {
		o.sol[t] = stage.NewSplitSolution(robot)
		o.dir[t] = stage.NewSplitDirection(robot)
		o.mats[t] = stage.NewKKTMatrix(robot)
		o.res[t] = stage.NewKKTResidual(robot)
		o.fact[t] = riccati.NewFactorization(nv)
		if t < N {
			o.stages[t] = stageFactory(t)
			o.inv[t] = riccati.NewMatrixInverter(nv+maxDimf, np+maxDimf)
			o.gains[t] = &riccati.Gain{}
		}
	}
	return o
}

// Solution returns stage t's current iterate (0 <= t <= N).
func (o *OCP) Solution(t int) *stage.SplitSolution { return o.sol[t] }

// TorqueFeedbackGain returns stage t's post-Riccati torque feedback gains
// Kuq, Kuv (0 <= t < N), valid after Solve returns. Call after
// convergence: the gains are recovered from the most recently factorized
// Gain/Jacobians, which only reflect the converged trajectory once the
// outer Newton loop has stopped updating.
func (o *OCP) TorqueFeedbackGain(t int) (Kuq, Kuv [][]float64) {
	g := o.gains[t]
	return o.stages[t].TorqueFeedbackGain(o.sol[t].Dimf(), g.Kaq, g.Kav, g.Kfq, g.Kfv)
}

// SetBarrier decays the shared log-barrier parameter across every stage's
// inequality stack.
func (o *OCP) SetBarrier(mu float64) {
	for t := 0; t < o.N; t++ {
		o.stages[t].SetBarrier(mu)
	}
}

func (o *OCP) bindContactStatus() {
	for t := 0; t < o.N; t++ {
		cs := o.contacts.At(t)
		o.sol[t].SetContactStatus(cs)
		o.dir[t].SetContactStatus(cs)
		o.mats[t].SetContactStatus(cs)
		o.res[t].SetContactStatus(cs)
	}
}

// KKTError returns sqrt of the sum of squared per-stage (and terminal)
// KKT residual norms, the convergence criterion for the outer iteration.
// When running under MPI (the process was launched via mpirun and
// mpi.IsOn() reports true), the local sum is parallel.AllReduceSum-combined
// across ranks first, synchronizing convergence across independent
// per-rank horizon replicas (e.g. a multi-start ensemble sharing one
// outer loop) the way fem/errorhandler.go's Stop/PanicOrNot all-reduce
// pattern synchronizes a global stop flag across domains.
func (o *OCP) KKTError() float64 {
	var sum float64
	for t := 0; t < o.N; t++ {
		sum += o.stages[t].SquaredKKTError(o.res[t])
	}
	sum += o.res[o.N].SquaredKKTErrorNorm()

	buf := []float64{sum}
	parallel.AllReduceSum(buf, make([]float64, 1))
	return math.Sqrt(buf[0])
}

// LargestResidual returns the largest-magnitude residual component across
// every stage and the terminal boundary, the cheap max-component
// convergence proxy fem/s_implicit.go computes as largFb =
// la.VecLargest(d.Fb, 1) alongside its scaled RMS check.
func (o *OCP) LargestResidual() float64 {
	largest := make([]float64, o.N+1)
	for t := 0; t <= o.N; t++ {
		largest[t] = o.res[t].LargestResidual()
	}
	return la.VecLargest(largest, 1)
}

// StepRmsError returns the largest per-stage scaled-RMS size of the
// just-computed Newton step, mirroring fem/s_implicit.go's secondary
// convergence check Lδu = la.VecRmsErr(d.Wb, atol, rtol, d.Sol.Y): each
// stage's step is measured against its own current iterate using Atol/Rtol,
// and the worst stage determines the reported value. Only meaningful after
// direction() has filled o.dir.
func (o *OCP) StepRmsError() float64 {
	perStage := make([]float64, o.N+1)
	for t := 0; t <= o.N; t++ {
		perStage[t] = la.VecRmsErr(o.dir[t].Block(), o.Atol, o.Rtol, o.sol[t].Block())
	}
	return la.VecLargest(perStage, 1)
}

// TotalCost returns the sum of every stage's cost (plus barrier terms) and
// the terminal cost, used by the line-search filter's cost axis.
func (o *OCP) TotalCost() float64 {
	var sum float64
	for t := 0; t < o.N; t++ {
		sum += o.stages[t].CostValue(o.robot, o.dtau, o.sol[t])
	}
	sum += o.terminal.CostValue(o.robot, o.sol[o.N])
	return sum
}

// TotalViolation returns the sum of every stage's feasibility violation.
func (o *OCP) TotalViolation() float64 {
	var sum float64
	for t := 0; t < o.N; t++ {
		sum += o.stages[t].Violation(o.res[t])
	}
	return sum
}

// assemble linearizes/condenses every stage and the terminal cost. Each
// stage only reads its own and the next stage's SplitSolution and writes
// its own KKTMatrix/KKTResidual, so the per-stage pass is safe to run
// across o.pool's workers; the (cheap) terminal assembly stays inline.
func (o *OCP) assemble() error {
	err := o.pool.Run(o.N, func(t int) error {
		return o.stages[t].Assemble(o.robot, o.dtau, o.sol[t], o.sol[t+1], o.mats[t], o.res[t])
	})
	if err != nil {
		return err
	}
	o.terminal.Assemble(o.robot, o.sol[o.N], o.mats[o.N], o.res[o.N])
	return nil
}

// factorize runs the backward Riccati recursion: per stage, invert the
// saddle block, recover the feedback/feedforward gain, then back up the
// value-function factorization through the closed-loop dynamics.
//
// When running under MPI, a Cholesky failure on this rank stops the local
// recursion immediately, but a peer rank's failure is otherwise invisible
// to this one until the next collective call — so the local success/failure
// flag is parallel.AllReduceSum-combined across ranks before returning,
// the same all-reduce-then-branch shape fem/errorhandler.go's Stop uses to
// turn an independent per-domain error into a synchronized abort. A peer-only
// failure is reported as solverrors.NonPositiveDefiniteBlock even though
// this rank's own block inverted cleanly.
func (o *OCP) factorize() error {
	o.fact[o.N].SetTerminal(o.mats[o.N], o.res[o.N])
	var localErr error
	for t := o.N - 1; t >= 0 && localErr == nil; t-- {
		dimf := o.sol[t].Dimf()
		nc := o.np + dimf
		n := o.nv + dimf
		G, C := saddleBlocks(o.nv, dimf, nc, o.mats[t])
		ginv, err := o.inv[t].Invert(G, C, n, nc, o.nv, 1e-6)
		if err != nil {
			localErr = err
			break
		}
		riccati.Compute(o.gains[t], ginv, o.nv, dimf, o.np, o.mats[t], o.res[t])
		o.fact[t].Propagate(o.dtau, o.nv, dimf, o.mats[t].Fqq(), o.mats[t].Fqv(), o.gains[t], o.mats[t], o.res[t], o.fact[t+1])
	}

	localFailed := 0.0
	if localErr != nil {
		localFailed = 1.0
	}
	buf := []float64{localFailed}
	parallel.AllReduceSum(buf, make([]float64, 1))

	if localErr != nil {
		return localErr
	}
	if buf[0] > 0 {
		return solverrors.New(solverrors.NonPositiveDefiniteBlock,
			"ocp: OCP.factorize: rank %d/%d: Riccati factorization failed on a peer rank", parallel.Rank(), parallel.Size())
	}
	return nil
}

// direction runs the forward recovery pass. The initial state is fixed
// (dq0 = dv0 = 0); every later stage's (dq, dv) is
// recovered from the closed-loop transition built from Fqq/Fqv and the
// acceleration feedback, matching riccati.Factorization.Propagate's Acl
// construction so the two passes stay consistent.
func (o *OCP) direction() {
	dq := make([]float64, o.nv)
	dv := make([]float64, o.nv)
	for t := 0; t < o.N; t++ {
		copy(o.dir[t].Q, dq)
		copy(o.dir[t].V, dv)

		da, df, dmu := o.gains[t].Direction(dq, dv)
		copy(o.dir[t].A, da)
		copy(o.dir[t].Fview(), df)
		copy(o.dir[t].Muview(), dmu)
		copy(o.dir[t].U, o.stages[t].TorqueDirection(dq, dv, da, df))

		o.stages[t].ComputeSlackAndDualDirection(o.robot, o.dtau, o.sol[t], o.dir[t])

		dqNext := matVec2(o.mats[t].Fqq(), dq, o.mats[t].Fqv(), dv)
		dvNext := make([]float64, o.nv)
		for i := range dvNext {
			dvNext[i] = dv[i] + o.dtau*da[i]
		}
		dq, dv = dqNext, dvNext
	}
	copy(o.dir[o.N].Q, dq)
	copy(o.dir[o.N].V, dv)
}

// saddleBlocks assembles the (a,f) Hessian G (n x n) and equality Jacobian
// C (nc x n) that riccati.MatrixInverter.Invert expects, out of
// KKTMatrix's separate Qaa/Qaf/Qff and Ca/Cf blocks.
func saddleBlocks(nv, dimf, nc int, m *stage.KKTMatrix) (G, C [][]float64) {
	n := nv + dimf
	G = zeros(n, n)
	qaa, qaf, qff := m.Qaa(), m.Qaf(), m.Qff()
	for i := 0; i < nv; i++ {
		copy(G[i][0:nv], qaa[i])
		copy(G[i][nv:n], qaf[i])
	}
	for i := 0; i < dimf; i++ {
		for j := 0; j < nv; j++ {
			G[nv+i][j] = qaf[j][i]
		}
		copy(G[nv+i][nv:n], qff[i])
	}

	C = zeros(nc, n)
	ca, cf := m.Ca(), m.Cf()
	for i := 0; i < nc; i++ {
		copy(C[i][0:nv], ca[i])
		copy(C[i][nv:n], cf[i])
	}
	return
}

func zeros(r, c int) [][]float64 {
	m := make([][]float64, r)
	for i := range m {
		m[i] = make([]float64, c)
	}
	return m
}

func matVec2(A [][]float64, x []float64, B [][]float64, y []float64) []float64 {
	n := len(A)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var acc float64
		for k := range x {
			acc += A[i][k] * x[k]
		}
		for k := range y {
			acc += B[i][k] * y[k]
		}
		out[i] = acc
	}
	return out
}

// maxStepSizes returns the fraction-to-boundary primal and dual step
// bounds across every stage.
func (o *OCP) maxStepSizes() (primal, dual float64) {
	primal, dual = 1.0, 1.0
	for t := 0; t < o.N; t++ {
		if f := o.stages[t].MaxSlackStepSize(); f < primal {
			primal = f
		}
		if f := o.stages[t].MaxDualStepSize(); f < dual {
			dual = f
		}
	}
	return
}

// Solve runs the Newton/interior-point loop to convergence or MaxIters.
func (o *OCP) Solve() error {
	o.bindContactStatus()
	for t := 0; t < o.N; t++ {
		// An infeasible initial guess is never fatal:
		// InitializeSlackAndDual lifts the slack away from the boundary
		// regardless of whether g(s) itself is currently negative.
		o.stages[t].InitializeSlackAndDual(o.robot, o.dtau, o.sol[t])
	}

	for iter := 0; iter < o.MaxIters; iter++ {
		if err := o.assemble(); err != nil {
			return err
		}

		kkt := o.KKTError()
		if o.Verbose {
			io.Pf("[rank %d/%d] iter %3d  kktError %13.6e\n", parallel.Rank(), parallel.Size(), iter, kkt)
		}
		if kkt < o.KKTTol {
			return nil
		}

		if err := o.factorize(); err != nil {
			return err
		}
		o.direction()

		if o.Verbose {
			io.Pf("iter %3d  largestResidual %13.6e  stepRmsError %13.6e\n",
				iter, o.LargestResidual(), o.StepRmsError())
		}

		primalMax, dualMax := o.maxStepSizes()

		o.filter.Reset()
		o.filter.Augment(o.TotalCost(), o.TotalViolation())

		step := primalMax
		for step > o.MinStepSize {
			if o.tryStep(step, dualMax) {
				break
			}
			step *= 0.5
		}
		if step <= o.MinStepSize {
			return solverrors.New(solverrors.LineSearchExhausted,
				"ocp: OCP.Solve: filter rejected every trial step size down to %g", o.MinStepSize)
		}

		if o.Barrier != 0 {
			o.Barrier = o.Schedule.Next(o.Barrier)
			o.SetBarrier(o.Barrier)
		}
	}
	return solverrors.New(solverrors.LineSearchExhausted,
		"ocp: OCP.Solve: KKT error did not reach tolerance within %d iterations", o.MaxIters)
}

// tryStep applies a trial primal step (and the corresponding dual step),
// checks filter acceptability, and keeps the step if accepted, rolling
// back otherwise.
func (o *OCP) tryStep(primalStep, dualStep float64) bool {
	for t := 0; t <= o.N; t++ {
		o.dir[t].AddTo(o.sol[t], primalStep)
	}
	if err := o.assemble(); err != nil {
		for t := 0; t <= o.N; t++ {
			o.dir[t].AddTo(o.sol[t], -primalStep)
		}
		return false
	}
	cost, violation := o.TotalCost(), o.TotalViolation()
	if o.filter.IsAcceptable(cost, violation) {
		o.filter.Augment(cost, violation)
		return true
	}
	for t := 0; t <= o.N; t++ {
		o.dir[t].AddTo(o.sol[t], -primalStep)
	}
	return false
}

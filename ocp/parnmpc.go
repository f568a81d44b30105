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

// ParNMPC is the dual Newton pathway: every stage is
// linearized around the backward-Euler state equation instead of the
// forward-Euler one OCP uses, so the per-stage "coarse" correction (the
// (a,f,mu) saddle-block elimination) is entirely local and the horizon's
// stages can be linearized concurrently via the same worker pool. The one
// genuinely sequential part left is backing the value-function
// factorization up through the closed-loop state transition, same as
// OCP.factorize; a converged ParNMPC run must reach the same KKT residual
// as OCP up to floating-point tolerance; see parnmpc_test.go.
//
// Stage k (0 <= k < N) owns the transition arriving at node k+1: it reads
// sol[k] (previous) and sol[k+1] (its own), and assembles into mats[k+1]/
// res[k+1]. Node 0 is the horizon's fixed initial state, never a decision
// variable here, mirroring OCP's sol[0].
type ParNMPC struct {
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

	// acl/bcl cache the closed-loop backward-Euler transition for every
	// edge, built once per outer iteration during coarseUpdate and reused
	// by backwardCorrection and forwardCorrection, so both passes agree on the exact same
	// linearization.
	acl [][][]float64
	bcl [][]float64

	pool   *parallel.Pool
	filter *LineSearchFilter

	KKTTol      float64
	MaxIters    int
	MinStepSize float64
	Verbose     bool

	// Atol, Rtol scale StepRmsError's per-component tolerance; see
	// OCP.StepRmsError.
	Atol, Rtol float64

	// Barrier, Schedule mirror OCP's barrier decay; see OCP.Barrier.
	Barrier  float64
	Schedule constraints.BarrierSchedule
}

// NewParNMPC mirrors NewOCP's allocation, with stageFactory building
// SplitOCP instances meant to be driven through AssembleBackward.
func NewParNMPC(robot robotmodel.Model, N int, dtau float64, contacts *ContactSequence, stageFactory func(k int) *SplitOCP, terminal *TerminalOCP, numProc int) *ParNMPC {
	nv, np := robot.Dimv(), robot.DimPassive()
	maxDimf := 3 * robot.MaxPointContacts()

	o := &ParNMPC{
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
	o.acl = make([][][]float64, N)
	o.bcl = make([][]float64, N)
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
			o.acl[t] = zeros(2*nv, 2*nv)
			o.bcl[t] = make([]float64, 2*nv)
		}
	}
	return o
}

// Solution returns node t's current iterate (0 <= t <= N).
func (o *ParNMPC) Solution(t int) *stage.SplitSolution { return o.sol[t] }

// TorqueFeedbackGain returns node i's post-Riccati torque feedback gains
// Kuq, Kuv (1 <= i <= N), recovered from the edge k = i-1 that produced
// it, valid after Solve returns.
func (o *ParNMPC) TorqueFeedbackGain(i int) (Kuq, Kuv [][]float64) {
	k := i - 1
	g := o.gains[k]
	return o.stages[k].TorqueFeedbackGain(o.sol[i].Dimf(), g.Kaq, g.Kav, g.Kfq, g.Kfv)
}

// SetBarrier decays the shared log-barrier parameter across every stage.
func (o *ParNMPC) SetBarrier(mu float64) {
	for k := 0; k < o.N; k++ {
		o.stages[k].SetBarrier(mu)
	}
}

// bindContactStatus rebinds every node i (1 <= i <= N) to the contact
// status owned by the edge that produces it (edge k = i-1); node 0 (the
// fixed initial state) is bound to the first edge's status too, since
// nothing reads its F/Mu views but Zero()/DimKKT() should still see a
// consistent size.
func (o *ParNMPC) bindContactStatus() {
	first := o.contacts.At(0)
	o.sol[0].SetContactStatus(first)
	o.dir[0].SetContactStatus(first)
	o.mats[0].SetContactStatus(first)
	o.res[0].SetContactStatus(first)
	for i := 1; i <= o.N; i++ {
		cs := o.contacts.At(i - 1)
		o.sol[i].SetContactStatus(cs)
		o.dir[i].SetContactStatus(cs)
		o.mats[i].SetContactStatus(cs)
		o.res[i].SetContactStatus(cs)
	}
}

// linearize assembles every stage's backward-Euler KKT block concurrently;
// the last stage additionally folds in the terminal cost.
func (o *ParNMPC) linearize() error {
	return o.pool.Run(o.N, func(k int) error {
		i := k + 1
		var sNext *stage.SplitSolution
		if i < o.N {
			sNext = o.sol[i+1]
		}
		if err := o.stages[k].AssembleBackward(o.robot, o.dtau, o.sol[i-1], o.sol[i], sNext, o.mats[i], o.res[i]); err != nil {
			return err
		}
		if i == o.N {
			o.terminal.Augment(o.robot, o.sol[o.N], o.mats[o.N], o.res[o.N])
		}
		return nil
	})
}

// KKTError mirrors OCP.KKTError over this horizon's N backward stages,
// including the same parallel.AllReduceSum combination across MPI ranks.
func (o *ParNMPC) KKTError() float64 {
	var sum float64
	for k := 0; k < o.N; k++ {
		sum += o.stages[k].SquaredKKTError(o.res[k+1])
	}

	buf := []float64{sum}
	parallel.AllReduceSum(buf, make([]float64, 1))
	return math.Sqrt(buf[0])
}

// LargestResidual mirrors OCP.LargestResidual over this horizon's N
// backward stages.
func (o *ParNMPC) LargestResidual() float64 {
	largest := make([]float64, o.N)
	for k := 0; k < o.N; k++ {
		largest[k] = o.res[k+1].LargestResidual()
	}
	return la.VecLargest(largest, 1)
}

// StepRmsError mirrors OCP.StepRmsError over this horizon's N backward
// stages. Only meaningful after forwardCorrection has filled o.dir.
func (o *ParNMPC) StepRmsError() float64 {
	perStage := make([]float64, o.N)
	for k := 0; k < o.N; k++ {
		perStage[k] = la.VecRmsErr(o.dir[k+1].Block(), o.Atol, o.Rtol, o.sol[k+1].Block())
	}
	return la.VecLargest(perStage, 1)
}

// TotalCost mirrors OCP.TotalCost.
func (o *ParNMPC) TotalCost() float64 {
	var sum float64
	for k := 0; k < o.N; k++ {
		sum += o.stages[k].CostValue(o.robot, o.dtau, o.sol[k+1])
	}
	sum += o.terminal.CostValue(o.robot, o.sol[o.N])
	return sum
}

// TotalViolation mirrors OCP.TotalViolation.
func (o *ParNMPC) TotalViolation() float64 {
	var sum float64
	for k := 0; k < o.N; k++ {
		sum += o.stages[k].Violation(o.res[k+1])
	}
	return sum
}

// coarseUpdate does the per-stage (a,f,mu) saddle-block elimination at
// every edge independently: unlike backwardCorrection it never reads a
// neighbor's factorization, so it runs
// across the pool exactly like linearize.
//
// As in OCP.factorize, a local Cholesky/transition failure is combined
// with every peer rank's outcome via parallel.AllReduceSum before
// returning, so a failure on one rank aborts every rank's outer loop
// instead of leaving the others spinning toward a KKTError that rank
// will never report.
func (o *ParNMPC) coarseUpdate() error {
	localErr := o.pool.Run(o.N, func(k int) error {
		i := k + 1
		dimf := o.sol[i].Dimf()
		nc := o.np + dimf
		n := o.nv + dimf
		G, C := saddleBlocks(o.nv, dimf, nc, o.mats[i])
		ginv, err := o.inv[k].Invert(G, C, n, nc, o.nv, 1e-6)
		if err != nil {
			return err
		}
		riccati.Compute(o.gains[k], ginv, o.nv, dimf, o.np, o.mats[i], o.res[i])
		return o.buildTransition(k)
	})

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
			"ocp: ParNMPC.coarseUpdate: rank %d/%d: saddle-block elimination failed on a peer rank", parallel.Rank(), parallel.Size())
	}
	return nil
}

// buildTransition solves for edge k's closed-loop backward-Euler
// transition (dq_{k-1}, dv_{k-1}) -> (dq_k, dv_k) and caches it in
// o.acl[k]/o.bcl[k]. The backward-Euler residual and the acceleration
// feedback together form an implicit 2nv x 2nv linear system (unlike
// forward-Euler's explicit one), so this inverts it directly via
// gosl/la.MatInv rather than the SPD Cholesky riccati.MatrixInverter uses
// (that system is not symmetric).
func (o *ParNMPC) buildTransition(k int) error {
	i := k + 1
	nv := o.nv
	sPrev, s := o.sol[i-1], o.sol[i]
	jA, jB := o.robot.SubtractConfigurationJacobians(sPrev.Q, s.Q)
	gain := o.gains[k]
	dtau := o.dtau

	sys := zeros(2*nv, 2*nv)
	for a := 0; a < nv; a++ {
		copy(sys[a][0:nv], jB[a])
		sys[a][nv+a] += dtau
	}
	for a := 0; a < nv; a++ {
		for b := 0; b < nv; b++ {
			sys[nv+a][b] = -dtau * gain.Kaq[a][b]
			sys[nv+a][nv+b] = -dtau * gain.Kav[a][b]
			if a == b {
				sys[nv+a][nv+b] += 1
			}
		}
	}

	rhsCoef := zeros(2*nv, 2*nv)
	for a := 0; a < nv; a++ {
		for b := 0; b < nv; b++ {
			rhsCoef[a][b] = -jA[a][b]
		}
		rhsCoef[nv+a][nv+a] = 1
	}

	constTerm := make([]float64, 2*nv)
	for a := 0; a < nv; a++ {
		constTerm[nv+a] = dtau * gain.Ka[a]
	}

	sysInv := la.MatAlloc(2*nv, 2*nv)
	_, err := la.MatInv(sysInv, sys, 1e-12)
	if err != nil {
		return solverrors.New(solverrors.FactorizationFailed,
			"ocp: ParNMPC.buildTransition: edge %d's closed-loop transition matrix is singular: %v", k, err)
	}

	o.acl[k] = matMulSquare(sysInv, rhsCoef, 2*nv)
	o.bcl[k] = matVecSquare(sysInv, constTerm, 2*nv)
	return nil
}

func matMulSquare(a, b [][]float64, n int) [][]float64 {
	out := zeros(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var acc float64
			for k := 0; k < n; k++ {
				acc += a[i][k] * b[k][j]
			}
			out[i][j] = acc
		}
	}
	return out
}

func matVecSquare(a [][]float64, x []float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var acc float64
		for k := 0; k < n; k++ {
			acc += a[i][k] * x[k]
		}
		out[i] = acc
	}
	return out
}

// backwardCorrection backs the value-function factorization up through the
// cached closed-loop transitions, sequentially from the last edge to the
// first. The last edge has no
// further factorization beyond node N to propagate through, so it uses
// Factorization.PropagateTerminal instead of PropagateWithTransition.
func (o *ParNMPC) backwardCorrection() {
	last := o.N - 1
	o.fact[o.N].PropagateTerminal(o.nv, o.sol[o.N].Dimf(), o.gains[last], o.mats[o.N], o.res[o.N])
	for k := last - 1; k >= 0; k-- {
		i := k + 1
		dimf := o.sol[i].Dimf()
		o.fact[i].PropagateWithTransition(o.nv, dimf, o.acl[k], o.bcl[k], o.gains[k], o.mats[i], o.res[i], o.fact[i+1])
	}
}

// forwardCorrection recovers every node's Newton step from the fixed
// boundary state forward through the cached transitions, mirroring
// OCP.direction.
func (o *ParNMPC) forwardCorrection() {
	dq := make([]float64, o.nv)
	dv := make([]float64, o.nv)
	for k := 0; k < o.N; k++ {
		i := k + 1
		dqi := matVecSquareTop(o.acl[k], o.bcl[k], dq, dv, o.nv, 0)
		dvi := matVecSquareTop(o.acl[k], o.bcl[k], dq, dv, o.nv, o.nv)

		copy(o.dir[i].Q, dqi)
		copy(o.dir[i].V, dvi)

		da, df, dmu := o.gains[k].Direction(dqi, dvi)
		copy(o.dir[i].A, da)
		copy(o.dir[i].Fview(), df)
		copy(o.dir[i].Muview(), dmu)
		copy(o.dir[i].U, o.stages[k].TorqueDirection(dqi, dvi, da, df))

		o.stages[k].ComputeSlackAndDualDirection(o.robot, o.dtau, o.sol[i], o.dir[i])

		dq, dv = dqi, dvi
	}
}

// matVecSquareTop evaluates (acl*[dq;dv] + bcl)[rowOff : rowOff+nv].
func matVecSquareTop(acl [][]float64, bcl, dq, dv []float64, nv, rowOff int) []float64 {
	out := make([]float64, nv)
	for i := 0; i < nv; i++ {
		row := acl[rowOff+i]
		acc := bcl[rowOff+i]
		for j := 0; j < nv; j++ {
			acc += row[j] * dq[j]
		}
		for j := 0; j < nv; j++ {
			acc += row[nv+j] * dv[j]
		}
		out[i] = acc
	}
	return out
}

// maxStepSizes mirrors OCP.maxStepSizes.
func (o *ParNMPC) maxStepSizes() (primal, dual float64) {
	primal, dual = 1.0, 1.0
	for k := 0; k < o.N; k++ {
		if f := o.stages[k].MaxSlackStepSize(); f < primal {
			primal = f
		}
		if f := o.stages[k].MaxDualStepSize(); f < dual {
			dual = f
		}
	}
	return
}

// Solve runs the same Newton/interior-point loop as OCP.Solve, with
// linearize/coarseUpdate replacing assemble/factorize's local part and
// backwardCorrection/forwardCorrection replacing the rest.
func (o *ParNMPC) Solve() error {
	o.bindContactStatus()
	for k := 0; k < o.N; k++ {
		o.stages[k].InitializeSlackAndDual(o.robot, o.dtau, o.sol[k+1])
	}

	for iter := 0; iter < o.MaxIters; iter++ {
		if err := o.linearize(); err != nil {
			return err
		}

		kkt := o.KKTError()
		if o.Verbose {
			io.Pf("parnmpc [rank %d/%d] iter %3d  kktError %13.6e\n", parallel.Rank(), parallel.Size(), iter, kkt)
		}
		if kkt < o.KKTTol {
			return nil
		}

		if err := o.coarseUpdate(); err != nil {
			return err
		}
		o.backwardCorrection()
		o.forwardCorrection()

		if o.Verbose {
			io.Pf("parnmpc iter %3d  largestResidual %13.6e  stepRmsError %13.6e\n",
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
				"ocp: ParNMPC.Solve: filter rejected every trial step size down to %g", o.MinStepSize)
		}

		if o.Barrier != 0 {
			o.Barrier = o.Schedule.Next(o.Barrier)
			o.SetBarrier(o.Barrier)
		}
	}
	return solverrors.New(solverrors.LineSearchExhausted,
		"ocp: ParNMPC.Solve: KKT error did not reach tolerance within %d iterations", o.MaxIters)
}

func (o *ParNMPC) tryStep(primalStep, dualStep float64) bool {
	for t := 1; t <= o.N; t++ {
		o.dir[t].AddTo(o.sol[t], primalStep)
	}
	if err := o.linearize(); err != nil {
		for t := 1; t <= o.N; t++ {
			o.dir[t].AddTo(o.sol[t], -primalStep)
		}
		return false
	}
	cost, violation := o.TotalCost(), o.TotalViolation()
	if o.filter.IsAcceptable(cost, violation) {
		o.filter.Augment(cost, violation)
		return true
	}
	for t := 1; t <= o.N; t++ {
		o.dir[t].AddTo(o.sol[t], -primalStep)
	}
	return false
}

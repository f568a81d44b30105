// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package solverrors implements the typed error kinds returned across the
// solver boundary.
package solverrors

import (
	"fmt"

	"github.com/cpmech/gosl/chk"
)

// Kind enumerates the error kinds that may be surfaced across a public
// solver boundary.
type Kind int

const (
	// InvalidDimension: a vector/matrix argument size disagrees with nq, nv,
	// or the active dimf.
	InvalidDimension Kind = iota

	// InfeasibleInitialGuess: slack initialisation required an artificial
	// lift; recovered locally, never fatal.
	InfeasibleInitialGuess

	// NonPositiveDefiniteBlock: Cholesky of the (a,f) Hessian failed.
	NonPositiveDefiniteBlock

	// FactorizationFailed: regularised retry of NonPositiveDefiniteBlock
	// also failed.
	FactorizationFailed

	// LineSearchExhausted: the filter rejected all trial step sizes down to
	// min_step_size.
	LineSearchExhausted

	// DomainError: negative dtau, T, or N <= 1.
	DomainError
)

func (k Kind) String() string {
	switch k {
	case InvalidDimension:
		return "InvalidDimension"
	case InfeasibleInitialGuess:
		return "InfeasibleInitialGuess"
	case NonPositiveDefiniteBlock:
		return "NonPositiveDefiniteBlock"
	case FactorizationFailed:
		return "FactorizationFailed"
	case LineSearchExhausted:
		return "LineSearchExhausted"
	case DomainError:
		return "DomainError"
	}
	return "UnknownKind"
}

// SolverError is the concrete error type returned at public boundaries.
type SolverError struct {
	kind Kind
	err  error
}

// New builds a SolverError of the given kind, formatting msg the way
// chk.Err does (gofem's convention for returned, as opposed to panicked,
// errors).
func New(kind Kind, msg string, args ...interface{}) *SolverError {
	return &SolverError{kind: kind, err: chk.Err(msg, args...)}
}

// Kind returns the error kind, for errors.As-style dispatch.
func (e *SolverError) Kind() Kind { return e.kind }

// Error implements the error interface.
func (e *SolverError) Error() string {
	return fmt.Sprintf("[%s] %v", e.kind, e.err)
}

// Unwrap supports errors.Is/errors.As against the wrapped chk error.
func (e *SolverError) Unwrap() error { return e.err }

// Is reports whether target is a *SolverError of the same Kind, so callers
// can write errors.Is(err, solverrors.New(solverrors.DomainError, "")).
func (e *SolverError) Is(target error) bool {
	t, ok := target.(*SolverError)
	if !ok {
		return false
	}
	return t.kind == e.kind
}

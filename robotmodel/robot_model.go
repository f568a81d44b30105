// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package robotmodel declares the narrow interface through which the
// solver consumes rigid-body kinematics and dynamics (URDF parsing, RNEA,
// CRBA, frame placements, and Lie-group configuration operations are all
// out of scope here; they are collaborators reached only through this
// interface).
package robotmodel

// Model is the external rigid-body kinematics/dynamics collaborator. A
// Model is stateful within a stage (kinematics caches live data from the
// last update_kinematics call), so the concurrency model clones one Model
// per worker.
type Model interface {
	// Dimensions.
	Dimq() int
	Dimv() int
	DimPassive() int
	MaxPointContacts() int
	HasFloatingBase() bool

	// Lie-group configuration operations.
	IntegrateConfiguration(q, v []float64, dt float64) (qNext []float64)
	IntegrateConfigurationJacobians(q, v []float64, dt float64) (dIntegrate_dq, dIntegrate_dv [][]float64)
	SubtractConfiguration(qA, qB []float64) (v []float64)
	SubtractConfigurationJacobians(qA, qB []float64) (dSubtract_dqA, dSubtract_dqB [][]float64)
	NormalizeConfiguration(q []float64)
	GenerateFeasibleConfiguration() (q []float64)

	// Kinematics/contact state.
	UpdateKinematics(q, v, a []float64)
	SetContactPointsByCurrentKinematics()
	SetContactStatus(active []bool)

	// Baumgarte-stabilized contact acceleration residual.
	ComputeBaumgarteResidual(out []float64)
	ComputeBaumgarteDerivatives(dq, dv, da [][]float64)

	// ContactDistance and its configuration Jacobian give the
	// position-level signed distance from each active contact point to
	// its supporting surface, consumed by the "contact distance to
	// surface" PDIP component; both are ordinary kinematics queries on
	// the same RobotModel collaborator.
	ContactDistance(out []float64)
	ContactDistanceJacobian(dq [][]float64)

	// Inverse dynamics.
	RNEA(q, v, a []float64, tauOut []float64)
	RNEADerivatives(q, v, a []float64, dTauDq, dTauDv, dTauDa [][]float64)
	DRNEAPartialDFext(out [][]float64)
	SetContactForces(f []float64)

	// Joint limits, sized nv.
	JointEffortLimit() []float64
	JointVelocityLimit() []float64
	LowerJointPositionLimit() []float64
	UpperJointPositionLimit() []float64
}

// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import "github.com/cpmech/ocprobot/robotmodel"

// NewJointPositionLowerLimit builds g(q) = q - qmin >= 0.
func NewJointPositionLowerLimit(robot robotmodel.Model, barrier, fractionRate float64) *BoxLimit {
	return NewBoxLimit("q", int(lowerSign), robot.LowerJointPositionLimit(), barrier, fractionRate)
}

// NewJointPositionUpperLimit builds g(q) = qmax - q >= 0.
func NewJointPositionUpperLimit(robot robotmodel.Model, barrier, fractionRate float64) *BoxLimit {
	return NewBoxLimit("q", int(upperSign), robot.UpperJointPositionLimit(), barrier, fractionRate)
}

// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import "github.com/cpmech/ocprobot/robotmodel"

// NewJointVelocityLowerLimit builds g(v) = v - (-vlim) >= 0, i.e. v >= -vlim.
func NewJointVelocityLowerLimit(robot robotmodel.Model, barrier, fractionRate float64) *BoxLimit {
	vlim := robot.JointVelocityLimit()
	bound := make([]float64, len(vlim))
	for i, v := range vlim {
		bound[i] = -v
	}
	return NewBoxLimit("v", int(lowerSign), bound, barrier, fractionRate)
}

// NewJointVelocityUpperLimit builds g(v) = vlim - v >= 0.
func NewJointVelocityUpperLimit(robot robotmodel.Model, barrier, fractionRate float64) *BoxLimit {
	return NewBoxLimit("v", int(upperSign), robot.JointVelocityLimit(), barrier, fractionRate)
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"math"
)

// Vec3 is one 3-axis reading.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// IsFinite reports whether all three components are finite.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Sample represents a single 9-axis measurement taken at one device timestamp.
//
// Units are whatever the source delivers as long as they are consistent:
// accel is usually in g, gyro must be in rad/s, mag is arbitrary.
type Sample struct {
	TimestampMS float64 `json:"timestamp_ms"` // monotonic device clock, milliseconds

	Accel Vec3 `json:"accel"`
	Gyro  Vec3 `json:"gyro"`
	Mag   Vec3 `json:"mag"`
}

// Validate checks that every scalar in the sample is finite.
func (s Sample) Validate() error {
	if !isFinite(s.TimestampMS) {
		return fmt.Errorf("timestamp is not finite: %v", s.TimestampMS)
	}
	if !s.Accel.IsFinite() {
		return fmt.Errorf("accel is not finite: %+v", s.Accel)
	}
	if !s.Gyro.IsFinite() {
		return fmt.Errorf("gyro is not finite: %+v", s.Gyro)
	}
	if !s.Mag.IsFinite() {
		return fmt.Errorf("mag is not finite: %+v", s.Mag)
	}
	return nil
}

// Source is anything that can provide samples over time: mock source,
// replay file, serial link, real sensor.
type Source interface {
	Next() (Sample, error)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

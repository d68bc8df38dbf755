// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"io"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/num/quat"

	"github.com/relabs-tech/rpy_stream/internal/imu"
)

const deg = math.Pi / 180

type mockSource struct {
	interval time.Duration
	ticker   *time.Ticker
	n        int

	done      chan struct{}
	closeOnce sync.Once
}

// NewMockSource creates a source that generates smooth synthetic motion
// (roll 20·sin t, pitch 15·cos 0.7t, yaw turning 30°/s) in the sensor's
// native frame. With paced set, Next waits one interval between samples.
func NewMockSource(interval time.Duration, paced bool) imu.Source {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	m := &mockSource{interval: interval, done: make(chan struct{})}
	if paced {
		m.ticker = time.NewTicker(interval)
	}
	return m
}

// Next returns io.EOF once the source is closed, including while it waits
// for the next tick.
func (m *mockSource) Next() (imu.Sample, error) {
	if err := waitTick(m.ticker, m.done); err != nil {
		return imu.Sample{}, err
	}
	elapsed := time.Duration(m.n) * m.interval
	m.n++
	return MockSampleAt(elapsed), nil
}

func (m *mockSource) Close() error {
	m.closeOnce.Do(func() {
		if m.ticker != nil {
			m.ticker.Stop()
		}
		close(m.done)
	})
	return nil
}

// waitTick blocks until the next tick or until done is closed. A nil
// ticker does not wait.
func waitTick(ticker *time.Ticker, done <-chan struct{}) error {
	if ticker == nil {
		select {
		case <-done:
			return io.EOF
		default:
			return nil
		}
	}
	select {
	case <-ticker.C:
		return nil
	case <-done:
		return io.EOF
	}
}

// MockSampleAt returns the synthetic sample for time t since start. The
// body-frame values are consistent with each other (gravity, a horizontal
// field pointing north, Euler rates mapped to body rates) and are then
// rotated back into the sensor mounting frame.
func MockSampleAt(t time.Duration) imu.Sample {
	s := t.Seconds()

	roll := 20 * math.Sin(s) * deg
	pitch := 15 * math.Cos(s*0.7) * deg
	yaw := math.Mod(s*30, 360) * deg

	rollRate := 20 * math.Cos(s) * deg
	pitchRate := -15 * 0.7 * math.Sin(s*0.7) * deg
	yawRate := 30 * deg

	q := fromEuler(roll, pitch, yaw)
	accel := toBody(q, imu.Vec3{Z: 1})
	mag := toBody(q, imu.Vec3{X: 1})

	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	gyro := imu.Vec3{
		X: rollRate - yawRate*sp,
		Y: pitchRate*cr + yawRate*cp*sr,
		Z: -pitchRate*sr + yawRate*cp*cr,
	}

	return imu.Sample{
		TimestampMS: float64(t) / float64(time.Millisecond),
		Accel:       toSensorFrame(accel),
		Gyro:        toSensorFrame(gyro),
		Mag:         toSensorFrame(mag),
	}
}

// fromEuler builds the ZYX quaternion for roll, pitch, yaw in radians.
func fromEuler(roll, pitch, yaw float64) quat.Number {
	qx := quat.Number{Real: math.Cos(roll / 2), Imag: math.Sin(roll / 2)}
	qy := quat.Number{Real: math.Cos(pitch / 2), Jmag: math.Sin(pitch / 2)}
	qz := quat.Number{Real: math.Cos(yaw / 2), Kmag: math.Sin(yaw / 2)}
	return quat.Mul(qz, quat.Mul(qy, qx))
}

// toBody expresses an earth-frame vector in the body frame.
func toBody(q quat.Number, v imu.Vec3) imu.Vec3 {
	r := quat.Mul(quat.Conj(q), quat.Mul(quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}, q))
	return imu.Vec3{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// toSensorFrame is the inverse of imu.Remap.
func toSensorFrame(v imu.Vec3) imu.Vec3 {
	return imu.Vec3{X: -v.Z, Y: -v.Y, Z: v.X}
}

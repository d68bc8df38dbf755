// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/rpy_stream/internal/imu"
)

// rawReader is the subset of the periph MPU9250 driver the source uses.
type rawReader interface {
	GetAccelerationX() (int16, error)
	GetAccelerationY() (int16, error)
	GetAccelerationZ() (int16, error)
	GetRotationX() (int16, error)
	GetRotationY() (int16, error)
	GetRotationZ() (int16, error)
}

type mpu9250Source struct {
	dev        rawReader
	accelScale float64 // g per count
	gyroScale  float64 // rad/s per count
	start      time.Time
	ticker     *time.Ticker

	done      chan struct{}
	closeOnce sync.Once
}

// NewMPU9250Source initializes an MPU9250 over SPI and returns a source
// reporting accel in g and gyro in rad/s. The upstream periph driver does
// not expose the AK8963 magnetometer, so Mag is always zero: use the tilt
// or gyro estimators with this source, or a source that carries a field.
func NewMPU9250Source(spiDev, csPin string, accelRange, gyroRange byte, interval time.Duration) (imu.Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("mpu9250: periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("mpu9250: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: SPI transport (%s): %w", spiDev, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("mpu9250: initialization: %w", err)
	}

	if err := dev.SetAccelRange(accelRange); err != nil {
		return nil, fmt.Errorf("mpu9250: set accel range: %w", err)
	}
	log.Printf("mpu9250: accelerometer range set to %d (±%dg)", accelRange, []int{2, 4, 8, 16}[accelRange])

	if err := dev.SetGyroRange(gyroRange); err != nil {
		return nil, fmt.Errorf("mpu9250: set gyro range: %w", err)
	}
	log.Printf("mpu9250: gyroscope range set to %d (±%d°/s)", gyroRange, []int{250, 500, 1000, 2000}[gyroRange])

	if err := dev.Calibrate(); err != nil {
		log.Printf("mpu9250: warning: calibration failed: %v", err)
	} else {
		log.Printf("mpu9250: calibration complete")
	}

	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return newMPU9250Source(dev, accelRange, gyroRange, time.NewTicker(interval)), nil
}

func newMPU9250Source(dev rawReader, accelRange, gyroRange byte, ticker *time.Ticker) *mpu9250Source {
	return &mpu9250Source{
		dev:        dev,
		accelScale: accelScale(accelRange),
		gyroScale:  gyroScale(gyroRange),
		start:      time.Now(),
		ticker:     ticker,
		done:       make(chan struct{}),
	}
}

// accelScale returns g per LSB for full-scale code 0..3 (±2g..±16g).
func accelScale(code byte) float64 {
	return float64(int(2)<<code) / 32768.0
}

// gyroScale returns rad/s per LSB for full-scale code 0..3 (±250..±2000 °/s).
func gyroScale(code byte) float64 {
	return float64(int(250)<<code) / 32768.0 * math.Pi / 180
}

func (s *mpu9250Source) Next() (imu.Sample, error) {
	if err := waitTick(s.ticker, s.done); err != nil {
		return imu.Sample{}, err
	}
	ts := float64(time.Since(s.start)) / float64(time.Millisecond)

	var raw [6]int16
	reads := []func() (int16, error){
		s.dev.GetAccelerationX, s.dev.GetAccelerationY, s.dev.GetAccelerationZ,
		s.dev.GetRotationX, s.dev.GetRotationY, s.dev.GetRotationZ,
	}
	names := []string{"accel X", "accel Y", "accel Z", "gyro X", "gyro Y", "gyro Z"}
	for i, read := range reads {
		v, err := read()
		if err != nil {
			return imu.Sample{}, &SourceError{Source: SourceMPU9250, Err: fmt.Errorf("%s: %w", names[i], err)}
		}
		raw[i] = v
	}

	return imu.Sample{
		TimestampMS: ts,
		Accel: imu.Vec3{
			X: float64(raw[0]) * s.accelScale,
			Y: float64(raw[1]) * s.accelScale,
			Z: float64(raw[2]) * s.accelScale,
		},
		Gyro: imu.Vec3{
			X: float64(raw[3]) * s.gyroScale,
			Y: float64(raw[4]) * s.gyroScale,
			Z: float64(raw[5]) * s.gyroScale,
		},
	}, nil
}

func (s *mpu9250Source) Close() error {
	s.closeOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.done)
	})
	return nil
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	"github.com/relabs-tech/rpy_stream/internal/config"
	"github.com/relabs-tech/rpy_stream/internal/imu"
)

// Source names accepted in the SOURCE config key.
const (
	SourceMock    = "mock"
	SourceReplay  = "replay"
	SourceSerial  = "serial"
	SourceNMEA    = "nmea"
	SourceMPU9250 = "mpu9250"
)

// SourceError wraps an acquisition failure from a sample source. It is
// recoverable unless it wraps io.EOF.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Closer is implemented by sources holding a device or file open.
type Closer interface {
	Close() error
}

// Open builds the sample source selected by cfg.Source.
func Open(cfg *config.Config) (imu.Source, error) {
	interval := time.Duration(cfg.IMUSampleInterval) * time.Millisecond

	switch cfg.Source {
	case SourceMock:
		return NewMockSource(interval, true), nil
	case SourceReplay:
		return OpenReplay(cfg.SourceReplayFile, cfg.SourceReplayRealtime)
	case SourceSerial:
		port, err := OpenSerial(cfg.SourceSerialPort, cfg.SourceSerialBaud)
		if err != nil {
			return nil, err
		}
		return NewRecordSource(SourceSerial, port, false), nil
	case SourceNMEA:
		port, err := OpenSerial(cfg.SourceSerialPort, cfg.SourceSerialBaud)
		if err != nil {
			return nil, err
		}
		return NewNMEASource(port), nil
	case SourceMPU9250:
		return NewMPU9250Source(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange, interval)
	default:
		return nil, fmt.Errorf("unknown sample source %q", cfg.Source)
	}
}

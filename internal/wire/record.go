// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package wire encodes samples as the comma-separated text record carried
// between the producer and its consumers:
//
//	timestamp_ms,ax,ay,az,gx,gy,gz,mx,my,mz
package wire

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/relabs-tech/rpy_stream/internal/imu"
)

// FieldCount is the number of fields in a record.
const FieldCount = 10

// MalformedFrameError is returned for a record that does not parse into
// exactly FieldCount finite floats.
type MalformedFrameError struct {
	Record string
	Fields int
	Err    error
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame (%d fields) %q: %v", e.Fields, e.Record, e.Err)
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

// Encode formats a sample as one record. The timestamp is rounded to three
// decimals; the other fields use the shortest representation that round-trips.
func Encode(s imu.Sample) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(strconv.FormatFloat(math.Round(s.TimestampMS*1000)/1000, 'f', -1, 64))
	for _, v := range []float64{
		s.Accel.X, s.Accel.Y, s.Accel.Z,
		s.Gyro.X, s.Gyro.Y, s.Gyro.Z,
		s.Mag.X, s.Mag.Y, s.Mag.Z,
	} {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// Decode parses one record. Any error is a *MalformedFrameError.
func Decode(record string) (imu.Sample, error) {
	parts := strings.Split(strings.TrimSpace(record), ",")
	if len(parts) != FieldCount {
		return imu.Sample{}, &MalformedFrameError{
			Record: record,
			Fields: len(parts),
			Err:    fmt.Errorf("want %d fields", FieldCount),
		}
	}

	var vals [FieldCount]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return imu.Sample{}, &MalformedFrameError{Record: record, Fields: len(parts), Err: fmt.Errorf("field %d: %w", i, err)}
		}
		vals[i] = v
	}

	s := imu.Sample{
		TimestampMS: vals[0],
		Accel:       imu.Vec3{X: vals[1], Y: vals[2], Z: vals[3]},
		Gyro:        imu.Vec3{X: vals[4], Y: vals[5], Z: vals[6]},
		Mag:         imu.Vec3{X: vals[7], Y: vals[8], Z: vals[9]},
	}
	if err := s.Validate(); err != nil {
		return imu.Sample{}, &MalformedFrameError{Record: record, Fields: len(parts), Err: err}
	}
	return s, nil
}

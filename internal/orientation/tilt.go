package orientation

import (
	"math"

	"github.com/relabs-tech/rpy_stream/internal/imu"
)

// TiltCompass derives roll and pitch from the accelerometer alone and a
// tilt-compensated heading from the magnetometer. It holds no state and is
// only meaningful while linear acceleration is negligible.
type TiltCompass struct{}

// NewTiltCompass returns a TiltCompass estimator.
func NewTiltCompass() *TiltCompass { return &TiltCompass{} }

func (*TiltCompass) Name() string { return KindTilt }

// Update computes
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
//	yaw   = atan2(my·cos(roll) − mz·sin(roll),
//	              mx·cos(pitch) + my·sin(roll)·sin(pitch) + mz·cos(roll)·sin(pitch))
//
// A zero accelerometer vector is rejected; NaN inputs flow through to NaN
// outputs.
func (t *TiltCompass) Update(s imu.Sample) (Orientation, error) {
	a, m := s.Accel, s.Mag
	if a.X == 0 && a.Y == 0 && a.Z == 0 {
		return Orientation{}, &DegenerateInputError{Estimator: KindTilt, Vector: "accel"}
	}

	roll := math.Atan2(a.Y, a.Z)
	pitch := math.Atan2(-a.X, math.Sqrt(a.Y*a.Y+a.Z*a.Z))

	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	yaw := math.Atan2(m.Y*cr-m.Z*sr, m.X*cp+m.Y*sr*sp+m.Z*cr*sp)

	return Orientation{
		TimestampMS: s.TimestampMS,
		Roll:        degrees(roll),
		Pitch:       degrees(pitch),
		Yaw:         degrees(yaw),
	}, nil
}

package orientation

import "github.com/relabs-tech/rpy_stream/internal/imu"

// GyroIntegrator dead-reckons orientation by integrating the gyroscope rate
// of each axis independently. There is no correction term: bias and
// integration error accumulate for the lifetime of the instance.
type GyroIntegrator struct {
	roll, pitch, yaw float64 // rad
	dt               interval
}

// NewGyroIntegrator returns an integrator starting at zero angles.
func NewGyroIntegrator() *GyroIntegrator { return &GyroIntegrator{} }

func (*GyroIntegrator) Name() string { return KindGyro }

func (g *GyroIntegrator) Update(s imu.Sample) (Orientation, error) {
	dt := g.dt.next(s.TimestampMS)
	g.dt.commit(s.TimestampMS)

	g.roll += s.Gyro.X * dt
	g.pitch += s.Gyro.Y * dt
	g.yaw += s.Gyro.Z * dt

	return Orientation{
		TimestampMS: s.TimestampMS,
		Roll:        degrees(g.roll),
		Pitch:       degrees(g.pitch),
		Yaw:         degrees(g.yaw),
	}, nil
}

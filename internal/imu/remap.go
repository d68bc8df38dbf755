package imu

// Remap converts a vector from the sensor mounting frame to the body frame:
//
//	(x, y, z)_body = (z, -y, -x)_sensor
func (v Vec3) Remap() Vec3 {
	return Vec3{X: v.Z, Y: -v.Y, Z: -v.X}
}

// Remap applies the body-frame permutation to accel, gyro and mag alike.
// Values are not validated; NaN in gives NaN out.
func Remap(s Sample) Sample {
	return Sample{
		TimestampMS: s.TimestampMS,
		Accel:       s.Accel.Remap(),
		Gyro:        s.Gyro.Remap(),
		Mag:         s.Mag.Remap(),
	}
}

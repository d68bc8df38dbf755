package orientation

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rpy_stream/internal/imu"
)

const tol = 1e-9

func sample(ts float64, acc, gyro, mag imu.Vec3) imu.Sample {
	return imu.Sample{TimestampMS: ts, Accel: acc, Gyro: gyro, Mag: mag}
}

func TestNew(t *testing.T) {
	for _, kind := range Kinds {
		e, err := New(kind, Options{})
		require.NoError(t, err)
		assert.Equal(t, kind, e.Name())
	}

	e, err := New(" Madgwick ", Options{Beta: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 0.2, e.(*Madgwick).Beta())

	e, err = New("madgwick", Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBeta, e.(*Madgwick).Beta())

	_, err = New("kalman", Options{})
	assert.Error(t, err)
}

func TestNewReturnsIndependentInstances(t *testing.T) {
	a, err := New(KindGyro, Options{})
	require.NoError(t, err)
	b, err := New(KindGyro, Options{})
	require.NoError(t, err)

	_, err = a.Update(sample(0, imu.Vec3{}, imu.Vec3{Z: 1}, imu.Vec3{}))
	require.NoError(t, err)

	o, err := b.Update(sample(0, imu.Vec3{}, imu.Vec3{}, imu.Vec3{}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, o.Yaw)
}

// --- TiltCompass ---

func TestTiltCompassLevelNorth(t *testing.T) {
	o, err := NewTiltCompass().Update(sample(5, imu.Vec3{Z: 1}, imu.Vec3{}, imu.Vec3{X: 1}))
	require.NoError(t, err)
	assert.InDelta(t, 0, o.Roll, tol)
	assert.InDelta(t, 0, o.Pitch, tol)
	assert.InDelta(t, 0, o.Yaw, tol)
	assert.Equal(t, 5.0, o.TimestampMS)
}

func TestTiltCompassRollAndPitch(t *testing.T) {
	tc := NewTiltCompass()

	o, err := tc.Update(sample(0, imu.Vec3{Y: 1, Z: 1}, imu.Vec3{}, imu.Vec3{X: 1}))
	require.NoError(t, err)
	assert.InDelta(t, 45, o.Roll, tol)
	assert.InDelta(t, 0, o.Pitch, tol)

	o, err = tc.Update(sample(0, imu.Vec3{X: -1, Z: 1}, imu.Vec3{}, imu.Vec3{X: 1}))
	require.NoError(t, err)
	assert.InDelta(t, 0, o.Roll, tol)
	assert.InDelta(t, 45, o.Pitch, tol)
}

func TestTiltCompassHeading(t *testing.T) {
	o, err := NewTiltCompass().Update(sample(0, imu.Vec3{Z: 1}, imu.Vec3{}, imu.Vec3{X: 1, Y: 1}))
	require.NoError(t, err)
	assert.InDelta(t, 45, o.Yaw, tol)
}

func TestTiltCompassHeadingUsesRadiansForTilt(t *testing.T) {
	// rolled 30° with a dipping field pointing north: the vertical field
	// component must cancel in the heading numerator
	r := 30 * math.Pi / 180
	sr, cr := math.Sincos(r)
	acc := imu.Vec3{Y: sr, Z: cr}
	mag := imu.Vec3{X: 0.5, Y: 0.8 * sr, Z: 0.8 * cr}

	o, err := NewTiltCompass().Update(sample(0, acc, imu.Vec3{}, mag))
	require.NoError(t, err)
	assert.InDelta(t, 30, o.Roll, tol)
	assert.InDelta(t, 0, o.Pitch, tol)
	assert.InDelta(t, 0, o.Yaw, tol)
}

func TestTiltCompassIgnoresHistory(t *testing.T) {
	tc := NewTiltCompass()
	s := sample(0, imu.Vec3{X: 0.1, Y: 0.2, Z: 0.9}, imu.Vec3{X: 3}, imu.Vec3{X: 0.3, Y: -0.1, Z: 0.5})
	first, err := tc.Update(s)
	require.NoError(t, err)

	_, err = tc.Update(sample(10, imu.Vec3{X: 1}, imu.Vec3{}, imu.Vec3{Y: 1}))
	require.NoError(t, err)

	again, err := tc.Update(s)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestTiltCompassDegenerate(t *testing.T) {
	_, err := NewTiltCompass().Update(sample(0, imu.Vec3{}, imu.Vec3{}, imu.Vec3{X: 1}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegenerateInput))

	var de *DegenerateInputError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "accel", de.Vector)
}

func TestTiltCompassNaNDoesNotPanic(t *testing.T) {
	o, err := NewTiltCompass().Update(sample(0, imu.Vec3{X: math.NaN(), Z: 1}, imu.Vec3{}, imu.Vec3{X: 1}))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(o.Pitch))
}

// --- GyroIntegrator ---

func TestGyroIntegratorFirstSampleUsesDefaultDt(t *testing.T) {
	g := NewGyroIntegrator()
	o, err := g.Update(sample(123456.789, imu.Vec3{}, imu.Vec3{X: 1, Y: -2, Z: 0.5}, imu.Vec3{}))
	require.NoError(t, err)

	assert.InDelta(t, 0.01*180/math.Pi, o.Roll, tol)
	assert.InDelta(t, -0.02*180/math.Pi, o.Pitch, tol)
	assert.InDelta(t, 0.005*180/math.Pi, o.Yaw, tol)
}

func TestGyroIntegratorUsesTimestampDelta(t *testing.T) {
	g := NewGyroIntegrator()
	_, err := g.Update(sample(1000, imu.Vec3{}, imu.Vec3{Z: 1}, imu.Vec3{}))
	require.NoError(t, err)

	o, err := g.Update(sample(1250, imu.Vec3{}, imu.Vec3{Z: 1}, imu.Vec3{}))
	require.NoError(t, err)

	// 0.01 s default + 0.25 s measured
	assert.InDelta(t, 0.26*180/math.Pi, o.Yaw, tol)
}

func TestGyroIntegratorDriftsWithoutBound(t *testing.T) {
	const (
		rate = 0.5 // rad/s, constant bias on z
		n    = 1000
	)
	g := NewGyroIntegrator()

	var o Orientation
	var mid float64
	for i := 0; i < n; i++ {
		var err error
		o, err = g.Update(sample(float64(i)*10, imu.Vec3{Z: 1}, imu.Vec3{Z: rate}, imu.Vec3{X: 1}))
		require.NoError(t, err)
		if i == n/2-1 {
			mid = o.Yaw
		}
	}

	want := rate * 10.0 * 180 / math.Pi
	assert.InDelta(t, want, o.Yaw, 1e-6)
	assert.Greater(t, o.Yaw, 180.0, "yaw must not be wrapped")
	assert.InDelta(t, want/2, mid, 1e-6)
	assert.InDelta(t, 0, o.Roll, tol)
	assert.InDelta(t, 0, o.Pitch, tol)
}

// --- Madgwick ---

func quatNorm(m *Madgwick) float64 {
	w, x, y, z := m.Quaternion()
	return math.Sqrt(w*w + x*x + y*y + z*z)
}

func TestMadgwickStartsAtIdentity(t *testing.T) {
	w, x, y, z := NewMadgwick(DefaultBeta).Quaternion()
	assert.Equal(t, []float64{1, 0, 0, 0}, []float64{w, x, y, z})
}

func TestMadgwickFirstSampleUsesDefaultDt(t *testing.T) {
	m := NewMadgwick(DefaultBeta)

	// level and aligned with the field: the correction term vanishes and
	// the step is pure gyro integration over 0.01 s
	o, err := m.Update(sample(5000, imu.Vec3{Z: 1}, imu.Vec3{Z: 1}, imu.Vec3{X: 1}))
	require.NoError(t, err)

	want := 2 * math.Atan(0.5*1*0.01) * 180 / math.Pi
	assert.InDelta(t, want, o.Yaw, tol)
	assert.InDelta(t, 0, o.Roll, tol)
	assert.InDelta(t, 0, o.Pitch, tol)
}

func TestMadgwickUnitNorm(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := NewMadgwick(0.1)

	rnd := func(scale float64) imu.Vec3 {
		return imu.Vec3{
			X: (rng.Float64()*2 - 1) * scale,
			Y: (rng.Float64()*2 - 1) * scale,
			Z: (rng.Float64()*2 - 1) * scale,
		}
	}

	ts := 0.0
	for i := 0; i < 5000; i++ {
		ts += 1 + rng.Float64()*20
		acc := rnd(2)
		acc.Z += 0.01 // never exactly zero
		mag := rnd(50)
		mag.X += 0.01
		_, err := m.Update(sample(ts, acc, rnd(5), mag))
		require.NoError(t, err)
		require.InDelta(t, 1.0, quatNorm(m), 1e-9, "update %d", i)
	}
}

func TestMadgwickConvergesToTilt(t *testing.T) {
	m := NewMadgwick(DefaultBeta)
	roll := 30 * math.Pi / 180
	acc := imu.Vec3{Y: math.Sin(roll), Z: math.Cos(roll)}

	var o Orientation
	for i := 0; i < 3000; i++ {
		var err error
		o, err = m.Update(sample(float64(i)*10, acc, imu.Vec3{}, imu.Vec3{X: 1}))
		require.NoError(t, err)
	}

	assert.InDelta(t, 30, o.Roll, 0.5)
	assert.InDelta(t, 0, o.Pitch, 0.5)
	assert.InDelta(t, 0, o.Yaw, 0.5)

	tilt, err := NewTiltCompass().Update(sample(0, acc, imu.Vec3{}, imu.Vec3{X: 1}))
	require.NoError(t, err)
	assert.InDelta(t, tilt.Roll, o.Roll, 0.5)
}

func TestMadgwickDegenerateInputLeavesStateUntouched(t *testing.T) {
	m := NewMadgwick(DefaultBeta)
	_, err := m.Update(sample(0, imu.Vec3{Y: 0.3, Z: 1}, imu.Vec3{X: 0.2}, imu.Vec3{X: 1}))
	require.NoError(t, err)
	w0, x0, y0, z0 := m.Quaternion()

	_, err = m.Update(sample(10, imu.Vec3{}, imu.Vec3{X: 5}, imu.Vec3{X: 1}))
	var de *DegenerateInputError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "accel", de.Vector)

	_, err = m.Update(sample(20, imu.Vec3{Z: 1}, imu.Vec3{X: 5}, imu.Vec3{}))
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "mag", de.Vector)
	assert.ErrorIs(t, err, ErrDegenerateInput)

	w, x, y, z := m.Quaternion()
	assert.Equal(t, []float64{w0, x0, y0, z0}, []float64{w, x, y, z})
}

func TestMadgwickSkippedFirstSampleKeepsDefaultDt(t *testing.T) {
	m := NewMadgwick(DefaultBeta)
	_, err := m.Update(sample(100, imu.Vec3{}, imu.Vec3{Z: 1}, imu.Vec3{X: 1}))
	require.Error(t, err)

	o, err := m.Update(sample(900, imu.Vec3{Z: 1}, imu.Vec3{Z: 1}, imu.Vec3{X: 1}))
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Atan(0.005)*180/math.Pi, o.Yaw, tol)
}

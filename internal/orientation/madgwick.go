package orientation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/relabs-tech/rpy_stream/internal/imu"
)

// DefaultBeta is the Madgwick MARG gain used when none is configured.
const DefaultBeta = 0.041

// Madgwick fuses gyro, accel and mag with the gradient-descent MARG filter.
// The gyro-driven quaternion derivative is pulled toward the attitude that
// best explains the measured gravity and magnetic field directions; beta
// trades responsiveness for noise rejection.
type Madgwick struct {
	q    quat.Number // unit quaternion, (w, x, y, z) = (Real, Imag, Jmag, Kmag)
	beta float64
	dt   interval
}

// NewMadgwick returns a filter starting at the identity attitude.
func NewMadgwick(beta float64) *Madgwick {
	return &Madgwick{q: quat.Number{Real: 1}, beta: beta}
}

func (*Madgwick) Name() string { return KindMadgwick }

// Beta returns the filter gain.
func (m *Madgwick) Beta() float64 { return m.beta }

// Quaternion returns the current attitude as w, x, y, z.
func (m *Madgwick) Quaternion() (w, x, y, z float64) {
	return m.q.Real, m.q.Imag, m.q.Jmag, m.q.Kmag
}

func (m *Madgwick) Update(s imu.Sample) (Orientation, error) {
	an := s.Accel.Norm()
	if an == 0 {
		return Orientation{}, &DegenerateInputError{Estimator: KindMadgwick, Vector: "accel"}
	}
	mn := s.Mag.Norm()
	if mn == 0 {
		return Orientation{}, &DegenerateInputError{Estimator: KindMadgwick, Vector: "mag"}
	}
	acc := [3]float64{s.Accel.X / an, s.Accel.Y / an, s.Accel.Z / an}
	mag := [3]float64{s.Mag.X / mn, s.Mag.Y / mn, s.Mag.Z / mn}

	dt := m.dt.next(s.TimestampMS)
	q := m.q

	// rate of change from the gyro alone
	omega := quat.Number{Imag: s.Gyro.X, Jmag: s.Gyro.Y, Kmag: s.Gyro.Z}
	qDot := quat.Scale(0.5, quat.Mul(q, omega))

	// earth-frame field; only its horizontal magnitude and vertical part matter
	h := quat.Mul(q, quat.Mul(quat.Number{Imag: mag[0], Jmag: mag[1], Kmag: mag[2]}, quat.Conj(q)))
	bx := math.Hypot(h.Imag, h.Jmag)
	bz := h.Kmag

	grad := margGradient(q, acc, mag, bx, bz)
	if n := floats.Norm(grad, 2); n > 0 {
		floats.Scale(m.beta/n, grad)
		qDot = quat.Sub(qDot, quat.Number{Real: grad[0], Imag: grad[1], Jmag: grad[2], Kmag: grad[3]})
	}

	q = quat.Add(q, quat.Scale(dt, qDot))
	q = quat.Scale(1/quat.Abs(q), q)

	m.q = q
	m.dt.commit(s.TimestampMS)

	roll, pitch, yaw := eulerFromQuat(q)
	return Orientation{
		TimestampMS: s.TimestampMS,
		Roll:        degrees(roll),
		Pitch:       degrees(pitch),
		Yaw:         degrees(yaw),
	}, nil
}

// margGradient returns Jᵀf for the stacked gravity and magnetic field
// objective f(q) and its Jacobian J.
func margGradient(q quat.Number, a, m [3]float64, bx, bz float64) []float64 {
	qw, qx, qy, qz := q.Real, q.Imag, q.Jmag, q.Kmag

	f := mat.NewVecDense(6, []float64{
		2*(qx*qz-qw*qy) - a[0],
		2*(qw*qx+qy*qz) - a[1],
		2*(0.5-qx*qx-qy*qy) - a[2],
		2*bx*(0.5-qy*qy-qz*qz) + 2*bz*(qx*qz-qw*qy) - m[0],
		2*bx*(qx*qy-qw*qz) + 2*bz*(qw*qx+qy*qz) - m[1],
		2*bx*(qw*qy+qx*qz) + 2*bz*(0.5-qx*qx-qy*qy) - m[2],
	})
	j := mat.NewDense(6, 4, []float64{
		-2 * qy, 2 * qz, -2 * qw, 2 * qx,
		2 * qx, 2 * qw, 2 * qz, 2 * qy,
		0, -4 * qx, -4 * qy, 0,
		-2 * bz * qy, 2 * bz * qz, -4*bx*qy - 2*bz*qw, -4*bx*qz + 2*bz*qx,
		-2*bx*qz + 2*bz*qx, 2*bx*qy + 2*bz*qw, 2*bx*qx + 2*bz*qz, -2*bx*qw + 2*bz*qy,
		2 * bx * qy, 2*bx*qz - 4*bz*qx, 2*bx*qw - 4*bz*qy, 2 * bx * qx,
	})

	var g mat.VecDense
	g.MulVec(j.T(), f)
	return mat.Col(nil, 0, &g)
}

// eulerFromQuat converts a unit quaternion to roll, pitch, yaw in radians.
func eulerFromQuat(q quat.Number) (roll, pitch, yaw float64) {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	pitch = math.Asin(math.Max(-1, math.Min(1, 2*(w*y-z*x))))
	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return roll, pitch, yaw
}

package orientation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/relabs-tech/rpy_stream/internal/imu"
)

// Orientation is the canonical representation of an estimate, in degrees.
type Orientation struct {
	TimestampMS float64 `json:"timestamp_ms"`
	Roll        float64 `json:"roll"`
	Pitch       float64 `json:"pitch"`
	Yaw         float64 `json:"yaw"`
}

// Estimator turns one body-frame sample into an orientation.
// Implementations own their state; use one instance per consumer.
type Estimator interface {
	Name() string
	Update(s imu.Sample) (Orientation, error)
}

// Estimator names accepted by New.
const (
	KindTilt     = "tilt"
	KindGyro     = "gyro"
	KindMadgwick = "madgwick"
)

// Kinds lists every estimator New can build.
var Kinds = []string{KindTilt, KindGyro, KindMadgwick}

// DefaultDt is the sample interval, in seconds, assumed for the first
// sample a stateful estimator sees.
const DefaultDt = 0.01

// ErrDegenerateInput is matched by every *DegenerateInputError.
var ErrDegenerateInput = errors.New("degenerate input")

// DegenerateInputError reports a zero-length vector that had to be
// normalised. The sample is skipped and the estimator state is unchanged.
type DegenerateInputError struct {
	Estimator string
	Vector    string // "accel" or "mag"
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("%s: %s vector has zero norm", e.Estimator, e.Vector)
}

func (e *DegenerateInputError) Is(target error) bool { return target == ErrDegenerateInput }

// Options tunes the estimators built by New.
type Options struct {
	Beta float64 // Madgwick gain; DefaultBeta when zero
}

// New builds the estimator with the given name.
func New(kind string, opts Options) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindTilt:
		return NewTiltCompass(), nil
	case KindGyro:
		return NewGyroIntegrator(), nil
	case KindMadgwick:
		beta := opts.Beta
		if beta == 0 {
			beta = DefaultBeta
		}
		return NewMadgwick(beta), nil
	default:
		return nil, fmt.Errorf("unknown estimator %q (want one of %s)", kind, strings.Join(Kinds, ", "))
	}
}

// interval derives dt from consecutive sample timestamps.
type interval struct {
	prevMS float64
	have   bool
}

// next returns dt in seconds without committing the timestamp.
func (iv *interval) next(tsMS float64) float64 {
	if !iv.have {
		return DefaultDt
	}
	return (tsMS - iv.prevMS) / 1000.0
}

func (iv *interval) commit(tsMS float64) {
	iv.prevMS = tsMS
	iv.have = true
}

func degrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

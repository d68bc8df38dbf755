package sensors

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/rpy_stream/internal/imu"
)

// TypeIMU is the proprietary sentence carrying one 9-axis sample:
//
//	$PIMU,<timestamp_ms>,ax,ay,az,gx,gy,gz,mx,my,mz*hh
const TypeIMU = "IMU"

// IMUSentence is a parsed $PIMU sentence.
type IMUSentence struct {
	nmea.BaseSentence
	Sample imu.Sample
}

var registerOnce sync.Once

func registerIMUParser() {
	registerOnce.Do(func() {
		nmea.MustRegisterParser(TypeIMU, parseIMUSentence)
	})
}

func parseIMUSentence(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	if len(s.Fields) != 10 {
		return nil, fmt.Errorf("nmea: %s expects 10 fields, got %d", s.Prefix(), len(s.Fields))
	}
	m := IMUSentence{
		BaseSentence: s,
		Sample: imu.Sample{
			TimestampMS: p.Float64(0, "timestamp"),
			Accel:       imu.Vec3{X: p.Float64(1, "ax"), Y: p.Float64(2, "ay"), Z: p.Float64(3, "az")},
			Gyro:        imu.Vec3{X: p.Float64(4, "gx"), Y: p.Float64(5, "gy"), Z: p.Float64(6, "gz")},
			Mag:         imu.Vec3{X: p.Float64(7, "mx"), Y: p.Float64(8, "my"), Z: p.Float64(9, "mz")},
		},
	}
	return m, p.Err()
}

type nmeaSource struct {
	r      io.Reader
	reader *bufio.Reader
}

// NewNMEASource reads $PIMU sentences from r, typically a serial port
// shared with other NMEA talkers. Sentences of other types are ignored.
func NewNMEASource(r io.Reader) imu.Source {
	registerIMUParser()
	return &nmeaSource{r: r, reader: bufio.NewReader(r)}
}

func (s *nmeaSource) Next() (imu.Sample, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				return imu.Sample{}, io.EOF
			}
			return imu.Sample{}, &SourceError{Source: SourceNMEA, Err: err}
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, perr := nmea.Parse(line)
		if perr != nil {
			// other talkers may emit sentences the parser does not know
			if strings.HasPrefix(line, "$P"+TypeIMU+",") {
				return imu.Sample{}, &SourceError{Source: SourceNMEA, Err: perr}
			}
			continue
		}

		m, ok := sentence.(IMUSentence)
		if !ok {
			continue
		}
		if verr := m.Sample.Validate(); verr != nil {
			return imu.Sample{}, &SourceError{Source: SourceNMEA, Err: verr}
		}
		return m.Sample, nil
	}
}

func (s *nmeaSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

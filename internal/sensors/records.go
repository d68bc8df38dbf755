package sensors

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/rpy_stream/internal/imu"
	"github.com/relabs-tech/rpy_stream/internal/wire"
)

// recordSource reads wire-format records, one per line, from a file or a
// serial device that already speaks the record format.
type recordSource struct {
	name    string
	r       io.Reader
	scanner *bufio.Scanner
	paced   bool
	lastTS  float64
	started bool
	sleep   func(time.Duration)
}

// NewRecordSource reads records from r. Blank lines and lines starting
// with '#' are skipped. With paced set, Next sleeps for the timestamp gap
// between consecutive records so a recording plays back in real time.
func NewRecordSource(name string, r io.Reader, paced bool) imu.Source {
	return &recordSource{
		name:    name,
		r:       r,
		scanner: bufio.NewScanner(r),
		paced:   paced,
		sleep:   time.Sleep,
	}
}

// OpenReplay opens a recorded record file.
func OpenReplay(path string, realtime bool) (imu.Source, error) {
	if path == "" {
		return nil, errors.New("replay source: SOURCE_REPLAY_FILE is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay source: %w", err)
	}
	return NewRecordSource(SourceReplay, f, realtime), nil
}

// OpenSerial opens a serial port in 8N1 raw mode.
func OpenSerial(portName string, baud int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return port, nil
}

// Next returns the next record. A malformed line yields a *SourceError
// and the following call continues with the next line. End of input is
// reported as io.EOF.
func (s *recordSource) Next() (imu.Sample, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sample, err := wire.Decode(line)
		if err != nil {
			return imu.Sample{}, &SourceError{Source: s.name, Err: err}
		}

		if s.paced && s.started {
			if gap := sample.TimestampMS - s.lastTS; gap > 0 {
				s.sleep(time.Duration(gap * float64(time.Millisecond)))
			}
		}
		s.lastTS = sample.TimestampMS
		s.started = true
		return sample, nil
	}

	if err := s.scanner.Err(); err != nil {
		return imu.Sample{}, &SourceError{Source: s.name, Err: err}
	}
	return imu.Sample{}, io.EOF
}

func (s *recordSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

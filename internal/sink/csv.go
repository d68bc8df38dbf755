package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/relabs-tech/rpy_stream/internal/orientation"
)

// CSV appends estimates to a file, one row per estimate.
type CSV struct {
	mu        sync.Mutex
	file      *os.File
	w         *csv.Writer
	estimator string
}

var csvHeader = []string{"timestamp_ms", "estimator", "roll_deg", "pitch_deg", "yaw_deg"}

// OpenCSV opens path for appending, writing the header to a new file.
func OpenCSV(path, estimator string) (*CSV, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create csv dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv %s: %w", path, err)
	}

	c := &CSV{file: f, w: csv.NewWriter(f), estimator: estimator}
	if info.Size() == 0 {
		if err := c.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, err
		}
		c.w.Flush()
	}
	return c, nil
}

func (c *CSV) Emit(o orientation.Orientation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := []string{
		strconv.FormatFloat(o.TimestampMS, 'f', 3, 64),
		c.estimator,
		strconv.FormatFloat(o.Roll, 'f', 4, 64),
		strconv.FormatFloat(o.Pitch, 'f', 4, 64),
		strconv.FormatFloat(o.Yaw, 'f', 4, 64),
	}
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	return c.file.Close()
}

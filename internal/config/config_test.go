package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverridesDefaults(t *testing.T) {
	in := `
# producer
STREAM_LISTEN_ADDR = 127.0.0.1:6000
SOURCE=replay
SOURCE_REPLAY_FILE=./capture.txt
SOURCE_REPLAY_REALTIME=false

ESTIMATOR=gyro
MADGWICK_BETA=0.1
MQTT_BROKER=tcp://localhost:1883
TOPIC_ORIENTATION=inertial/rpy/
IMU_ACCEL_RANGE=2
`
	cfg, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6000", cfg.StreamListenAddr)
	assert.Equal(t, "replay", cfg.Source)
	assert.Equal(t, "./capture.txt", cfg.SourceReplayFile)
	assert.False(t, cfg.SourceReplayRealtime)
	assert.Equal(t, "gyro", cfg.Estimator)
	assert.Equal(t, 0.1, cfg.MadgwickBeta)
	assert.Equal(t, byte(2), cfg.IMUAccelRange)
	assert.Equal(t, "inertial/rpy/madgwick", cfg.OrientationTopic("madgwick"))

	// untouched keys keep their defaults
	assert.Equal(t, "/imu", cfg.StreamPath)
	assert.Equal(t, 10, cfg.IMUSampleInterval)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no equals":        "STREAM_URL",
		"unknown key":      "FOO=bar",
		"bad range":        "IMU_GYRO_RANGE=4",
		"bad estimator":    "ESTIMATOR=kalman",
		"bad source":       "SOURCE=usb",
		"negative beta":    "MADGWICK_BETA=-1",
		"zero interval":    "IMU_SAMPLE_INTERVAL=0",
		"bad port":         "WEB_SERVER_PORT=70000",
		"relative path":    "STREAM_PATH=imu",
		"replay sans file": "SOURCE=replay",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestParseReportsLineNumber(t *testing.T) {
	_, err := Parse(strings.NewReader("# header\nSOURCE=mock\nBOGUS=1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestLoadAndGlobal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpy_config.txt")
	require.NoError(t, os.WriteFile(path, []byte("ESTIMATOR=tilt\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tilt", cfg.Estimator)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	require.NoError(t, InitGlobal(path))
	require.NotNil(t, Get())
	assert.Equal(t, "tilt", Get().Estimator)

	// second init is ignored
	require.NoError(t, InitGlobal(filepath.Join(t.TempDir(), "missing.txt")))
	assert.Equal(t, "tilt", Get().Estimator)

	loaded, err := InitGlobalOptional(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, "tilt", Get().Estimator)

	loaded, err = InitGlobalOptional(path)
	require.NoError(t, err)
	assert.True(t, loaded)
}

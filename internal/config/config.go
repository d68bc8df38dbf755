package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Streaming endpoint
	StreamListenAddr        string
	StreamPath              string
	StreamURL               string
	StreamReconnectInterval int // milliseconds

	// Sample source
	Source               string // mock, replay, serial, nmea, mpu9250
	SourceReplayFile     string
	SourceReplayRealtime bool
	SourceSerialPort     string
	SourceSerialBaud     int

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// Estimation
	Estimator    string // tilt, gyro, madgwick
	MadgwickBeta float64

	// MQTT
	MQTTBroker           string
	MQTTClientIDConsumer string
	MQTTClientIDWeb      string

	// Topics
	TopicOrientation string // prefix; the estimator name is appended

	// Sinks
	CSVOutput string

	// Timing
	IMUSampleInterval  int // milliseconds
	ConsoleLogInterval int // milliseconds

	// Web Server
	WebServerPort int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock for initialization,
//     read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	return &Config{
		StreamListenAddr:        "0.0.0.0:5555",
		StreamPath:              "/imu",
		StreamURL:               "ws://localhost:5555/imu",
		StreamReconnectInterval: 1000,

		Source:               "mock",
		SourceReplayRealtime: true,
		SourceSerialPort:     "/dev/ttyUSB0",
		SourceSerialBaud:     115200,

		IMUSPIDevice: "/dev/spidev0.0",
		IMUCSPin:     "8",

		Estimator:    "madgwick",
		MadgwickBeta: 0.041,

		MQTTClientIDConsumer: "rpy-consumer",
		MQTTClientIDWeb:      "rpy-web",
		TopicOrientation:     "inertial/orientation",

		IMUSampleInterval:  10,
		ConsoleLogInterval: 100,
		WebServerPort:      8080,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default().
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Streaming endpoint
	case "STREAM_LISTEN_ADDR":
		c.StreamListenAddr = value
	case "STREAM_PATH":
		if !strings.HasPrefix(value, "/") {
			return fmt.Errorf("STREAM_PATH must start with '/', got %q", value)
		}
		c.StreamPath = value
	case "STREAM_URL":
		c.StreamURL = value
	case "STREAM_RECONNECT_INTERVAL":
		interval, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		c.StreamReconnectInterval = interval

	// Sample source
	case "SOURCE":
		switch value {
		case "mock", "replay", "serial", "nmea", "mpu9250":
			c.Source = value
		default:
			return fmt.Errorf("SOURCE must be one of mock, replay, serial, nmea, mpu9250, got %q", value)
		}
	case "SOURCE_REPLAY_FILE":
		c.SourceReplayFile = value
	case "SOURCE_REPLAY_REALTIME":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid SOURCE_REPLAY_REALTIME %q: %w", value, err)
		}
		c.SourceReplayRealtime = b
	case "SOURCE_SERIAL_PORT":
		c.SourceSerialPort = value
	case "SOURCE_SERIAL_BAUD":
		rate, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		c.SourceSerialBaud = rate

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value

	// IMU Sensor Ranges
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)

	// Estimation
	case "ESTIMATOR":
		switch value {
		case "tilt", "gyro", "madgwick":
			c.Estimator = value
		default:
			return fmt.Errorf("ESTIMATOR must be one of tilt, gyro, madgwick, got %q", value)
		}
	case "MADGWICK_BETA":
		beta, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MADGWICK_BETA %q: %w", value, err)
		}
		if beta <= 0 {
			return fmt.Errorf("MADGWICK_BETA must be > 0, got %v", beta)
		}
		c.MadgwickBeta = beta

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_CONSUMER":
		c.MQTTClientIDConsumer = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_ORIENTATION":
		c.TopicOrientation = strings.TrimSuffix(value, "/")

	// Sinks
	case "CSV_OUTPUT":
		c.CSVOutput = value

	// Timing
	case "IMU_SAMPLE_INTERVAL":
		interval, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		c.IMUSampleInterval = interval
	case "CONSOLE_LOG_INTERVAL":
		interval, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		c.ConsoleLogInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", port)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func positiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0, got %d", key, n)
	}
	return n, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.StreamListenAddr == "" {
		return fmt.Errorf("STREAM_LISTEN_ADDR is required")
	}
	if c.StreamURL == "" {
		return fmt.Errorf("STREAM_URL is required")
	}
	if c.Source == "replay" && c.SourceReplayFile == "" {
		return fmt.Errorf("SOURCE_REPLAY_FILE is required when SOURCE=replay")
	}
	if (c.Source == "serial" || c.Source == "nmea") && c.SourceSerialPort == "" {
		return fmt.Errorf("SOURCE_SERIAL_PORT is required when SOURCE=%s", c.Source)
	}
	if c.MQTTBroker != "" && c.TopicOrientation == "" {
		return fmt.Errorf("TOPIC_ORIENTATION is required when MQTT_BROKER is set")
	}
	return nil
}

// OrientationTopic returns the MQTT topic for one estimator's output.
func (c *Config) OrientationTopic(estimator string) string {
	return c.TopicOrientation + "/" + estimator
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// InitGlobalDefault installs Default() when no config file is present.
func InitGlobalDefault() {
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig = Default()
	})
}

// InitGlobalOptional is InitGlobal for a file that may not exist: a
// missing file installs Default() and reports loaded=false.
func InitGlobalOptional(configPath string) (loaded bool, err error) {
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		InitGlobalDefault()
		return false, nil
	}
	return true, InitGlobal(configPath)
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

package arm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory.
const DefaultConfigFile = "trasharm.yaml"

// Joint modes.
const (
	ModePosition   = "position"
	ModeContinuous = "continuous"
)

// Config holds the arm configuration.
type Config struct {
	// Bus is the I2C bus name, e.g. "1" for /dev/i2c-1.
	Bus string `yaml:"bus"`
	// Address is the PCA9685 I2C address.
	Address uint16 `yaml:"address"`
	// PWMFrequency is the servo refresh rate in Hz.
	PWMFrequency int `yaml:"pwm_frequency"`

	Joints   map[JointName]JointConfig `yaml:"joints"`
	Movement MovementConfig            `yaml:"movement"`
}

// JointConfig configures a single joint. Zero fields are filled with
// defaults on load; mode-specific fields are only consulted by their
// mode's joint type.
type JointConfig struct {
	Channel   int     `yaml:"channel"`
	Mode      string  `yaml:"mode"`
	MinAngle  float64 `yaml:"min_angle"`
	MaxAngle  float64 `yaml:"max_angle"`
	MinPulse  int     `yaml:"min_pulse"`
	MaxPulse  int     `yaml:"max_pulse"`
	Home      float64 `yaml:"home"`
	Neutral   float64 `yaml:"neutral"`
	OffsetDeg float64 `yaml:"offset_deg"`
	Invert    bool    `yaml:"invert"`

	// Position mode: interpolation samples per second.
	SmoothingRate float64 `yaml:"smoothing_rate"`

	// Continuous mode.
	StopPulse        int     `yaml:"stop_pulse"`
	SpeedPulseRange  int     `yaml:"speed_pulse_range"`
	DegreesPerSecond float64 `yaml:"degrees_per_second"`
	MinMoveDeg       float64 `yaml:"min_move_deg"`
}

// MovementConfig holds coordinator-level motion defaults.
type MovementConfig struct {
	// DefaultSpeed in degrees per second, used when a move does not
	// specify one.
	DefaultSpeed float64 `yaml:"default_speed"`
	// PauseBetween is the default pause in seconds after each sequence
	// step.
	PauseBetween float64 `yaml:"pause_between"`
}

// DefaultConfig returns the stock trashbot arm: a position shoulder on
// channel 0, a continuous elbow on channel 1, and a position gripper
// on channel 2.
func DefaultConfig() *Config {
	return &Config{
		Bus:          "1",
		Address:      0x40,
		PWMFrequency: 50,
		Joints: map[JointName]JointConfig{
			Shoulder: {
				Channel:       0,
				Mode:          ModePosition,
				MinAngle:      0,
				MaxAngle:      180,
				MinPulse:      500,
				MaxPulse:      2500,
				Home:          0,
				Neutral:       0,
				SmoothingRate: 10,
			},
			Elbow: {
				Channel:          1,
				Mode:             ModeContinuous,
				MinAngle:         0,
				MaxAngle:         180,
				MinPulse:         500,
				MaxPulse:         2500,
				Home:             0,
				Neutral:          0,
				StopPulse:        1500,
				SpeedPulseRange:  100,
				DegreesPerSecond: 120,
				MinMoveDeg:       1,
			},
			Gripper: {
				Channel:       2,
				Mode:          ModePosition,
				MinAngle:      0,
				MaxAngle:      90,
				MinPulse:      500,
				MaxPulse:      2500,
				Home:          0,
				Neutral:       0,
				SmoothingRate: 10,
			},
		},
		Movement: MovementConfig{
			DefaultSpeed: 50,
			PauseBetween: 0.5,
		},
	}
}

// LoadConfig loads configuration from the default config file.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Fields left
// out of the file take their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.fillDefaults()
	return &cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists.
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}

func (c *Config) fillDefaults() {
	if c.Bus == "" {
		c.Bus = "1"
	}
	if c.Address == 0 {
		c.Address = 0x40
	}
	if c.PWMFrequency == 0 {
		c.PWMFrequency = 50
	}
	if c.Movement.DefaultSpeed == 0 {
		c.Movement.DefaultSpeed = 50
	}
	if c.Movement.PauseBetween == 0 {
		c.Movement.PauseBetween = 0.5
	}
	for name, jc := range c.Joints {
		c.Joints[name] = jc.withDefaults()
	}
}

func (jc JointConfig) withDefaults() JointConfig {
	if jc.Mode == "" {
		jc.Mode = ModePosition
	}
	if jc.MinPulse == 0 {
		jc.MinPulse = 500
	}
	if jc.MaxPulse == 0 {
		jc.MaxPulse = 2500
	}
	if jc.Mode == ModePosition && jc.SmoothingRate == 0 {
		jc.SmoothingRate = 10
	}
	if jc.Mode == ModeContinuous {
		if jc.StopPulse == 0 {
			jc.StopPulse = 1500
		}
		if jc.SpeedPulseRange == 0 {
			jc.SpeedPulseRange = 100
		}
		if jc.DegreesPerSecond == 0 {
			jc.DegreesPerSecond = 120
		}
		if jc.MinMoveDeg == 0 {
			jc.MinMoveDeg = 1
		}
	}
	return jc
}

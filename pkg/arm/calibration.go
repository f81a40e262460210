package arm

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultCalibrationFile is looked up in the working directory.
const DefaultCalibrationFile = "calibration.json"

// JointCalibration holds measured overrides for a single joint, as
// written by the calibrate command. Zero-valued pulse/rate fields mean
// "keep the configured default"; offset and invert always apply, since
// their zero values are the defaults anyway.
type JointCalibration struct {
	MinPulse  int     `json:"min_pulse,omitempty"`
	MaxPulse  int     `json:"max_pulse,omitempty"`
	OffsetDeg float64 `json:"offset_deg,omitempty"`
	Invert    bool    `json:"invert,omitempty"`

	// Continuous joints only.
	StopPulse        int     `json:"stop_pulse,omitempty"`
	DegreesPerSecond float64 `json:"degrees_per_second,omitempty"`
}

// Calibration holds calibration data for all joints, keyed by joint name.
type Calibration map[JointName]JointCalibration

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	var raw map[string]JointCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}

	cal := make(Calibration, len(raw))
	for name, jc := range raw {
		cal[JointName(name)] = jc
	}

	return cal, nil
}

// Save writes the calibration data to a JSON file.
func (c Calibration) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Apply overlays the calibration onto cfg's joints. Entries for joints
// the config does not know are ignored.
func (c Calibration) Apply(cfg *Config) {
	for name, jc := range cfg.Joints {
		cal, ok := c[name]
		if !ok {
			continue
		}
		if cal.MinPulse != 0 {
			jc.MinPulse = cal.MinPulse
		}
		if cal.MaxPulse != 0 {
			jc.MaxPulse = cal.MaxPulse
		}
		jc.OffsetDeg = cal.OffsetDeg
		jc.Invert = cal.Invert
		if cal.StopPulse != 0 {
			jc.StopPulse = cal.StopPulse
		}
		if cal.DegreesPerSecond != 0 {
			jc.DegreesPerSecond = cal.DegreesPerSecond
		}
		cfg.Joints[name] = jc
	}
}

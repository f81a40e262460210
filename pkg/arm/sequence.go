package arm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Step is one entry of a choreographed sequence. Speed 0 uses the
// coordinator's default; Pause is in seconds, 0 uses the configured
// default pause and a negative value skips the pause entirely.
type Step struct {
	Pose  string  `yaml:"pose"`
	Speed float64 `yaml:"speed,omitempty"`
	Pause float64 `yaml:"pause,omitempty"`
}

// Sequence is an ordered list of steps, executed strictly one after
// the other. Steps are numbered from 1 in logs and errors.
type Sequence []Step

// LoadSequence loads a sequence from a YAML file.
func LoadSequence(path string) (Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sequence file: %w", err)
	}
	var seq Sequence
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, fmt.Errorf("parse sequence YAML: %w", err)
	}
	return seq, nil
}

// Demos returns the built-in demo sequences, keyed by name.
func Demos() map[string]Sequence {
	return map[string]Sequence{
		// Pick a piece of trash and drop it in the bin.
		"pickup": {
			{Pose: "ready"},
			{Pose: "approach_trash"},
			{Pose: "grab_trash", Pause: 1},
			{Pose: "lift_trash"},
			{Pose: "transport"},
			{Pose: "over_bin"},
			{Pose: "release", Pause: 1},
			{Pose: PoseHome},
		},
		"wave": {
			{Pose: "wave_up", Speed: 100, Pause: -1},
			{Pose: "wave_down", Speed: 100, Pause: -1},
			{Pose: "wave_up", Speed: 100, Pause: -1},
			{Pose: "wave_down", Speed: 100, Pause: -1},
			{Pose: PoseHome},
		},
		// Slow full-range workout, useful after recalibrating.
		"exercise": {
			{Pose: PoseNeutral, Speed: 20},
			{Pose: "ready", Speed: 20},
			{Pose: "over_bin", Speed: 20},
			{Pose: PoseHome, Speed: 20},
		},
	}
}

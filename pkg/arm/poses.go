package arm

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultPosesFile is looked up in the working directory.
const DefaultPosesFile = "poses.yaml"

// Names of the poses the coordinator treats specially.
const (
	PoseHome    = "home"
	PoseNeutral = "neutral"
)

// Pose maps joint names to target angles in degrees.
type Pose map[JointName]float64

// PoseTable maps pose names to poses. It is read-only after load.
type PoseTable map[string]Pose

// LoadPoses loads a pose table from a YAML file. On any failure the
// returned table is empty and the arm stays operable through direct
// angle commands and the home/neutral fallbacks.
func LoadPoses(path string) (PoseTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PoseTable{}, fmt.Errorf("read poses file: %w", err)
	}

	var table PoseTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return PoseTable{}, fmt.Errorf("parse poses YAML: %w", err)
	}
	if table == nil {
		table = PoseTable{}
	}
	return table, nil
}

// Save writes the pose table to a YAML file.
func (p PoseTable) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Names returns all pose names, sorted.
func (p PoseTable) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultPoses returns the built-in pose set for the stock trashbot
// arm. A poses.yaml in the working directory replaces it.
func DefaultPoses() PoseTable {
	return PoseTable{
		PoseHome:    {Shoulder: 0, Elbow: 0, Gripper: 0},
		PoseNeutral: {Shoulder: 90, Elbow: 0, Gripper: 45},
		"ready":     {Shoulder: 90, Elbow: 0, Gripper: 0},

		// Trash pickup choreography.
		"approach_trash": {Shoulder: 45, Elbow: 0, Gripper: 0},
		"grab_trash":     {Shoulder: 45, Elbow: 0, Gripper: 90},
		"lift_trash":     {Shoulder: 100, Elbow: 0, Gripper: 90},
		"transport":      {Shoulder: 120, Elbow: 45, Gripper: 90},
		"over_bin":       {Shoulder: 135, Elbow: 90, Gripper: 90},
		"release":        {Shoulder: 135, Elbow: 90, Gripper: 0},

		// Greeting wave.
		"wave_up":   {Shoulder: 160, Elbow: 0, Gripper: 0},
		"wave_down": {Shoulder: 100, Elbow: 0, Gripper: 0},
	}
}

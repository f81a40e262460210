// Package arm provides abstractions for controlling a PWM-driven servo arm.
package arm

// JointName identifies a joint in the arm.
type JointName string

// Joint names for the stock trashbot arm.
const (
	Shoulder JointName = "shoulder"
	Elbow    JointName = "elbow"
	Gripper  JointName = "gripper"
)

// AllJoints returns the stock joint names in order (matching channels 0-2).
func AllJoints() []JointName {
	return []JointName{
		Shoulder,
		Elbow,
		Gripper,
	}
}

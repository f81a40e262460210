// Package trasharm drives the trashbot's servo arm: a PCA9685 PWM
// controller on the I²C bus fanning out to hobby servos.
//
// The arm mixes position servos, which go where the pulse tells them,
// with continuous-rotation servos, where the pulse sets speed and the
// angle is dead-reckoned. Both are driven through the same joint
// interface so poses and sequences do not care which is which.
//
// # Installation
//
//	go install github.com/trashbot/trasharm/cmd/trasharm@latest
//
// # Usage
//
// First, measure the pulse ranges of your servos:
//
//	trasharm calibrate
//
// Then run a demo:
//
//	trasharm demo pickup --watch
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/trasharm: CLI with calibrate, pose, demo, sequence, poke and stop commands
//   - cmd/arm-info: Hardware probe for the I²C bus and serial ports
//   - pkg/arm: Joint control, calibration, poses and sequences
//   - pkg/pwm: PCA9685 driver and a recording simulator
//   - pkg/choreo: Sequence runner with live state updates
package trasharm

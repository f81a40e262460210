package arm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Reading is a reported joint angle. Estimated marks dead-reckoned
// values from continuous-rotation joints, which have no position
// feedback: those are a belief updated by our own commands, never a
// measurement, and they drift over repeated moves.
type Reading struct {
	Degrees   float64
	Known     bool
	Estimated bool
}

// Joint is one actuator of the arm. Exactly two implementations exist:
// PositionJoint and ContinuousJoint. A joint's mode is fixed for its
// lifetime.
type Joint interface {
	Name() JointName
	Channel() int

	// Limits returns the logical angle range in degrees.
	Limits() (min, max float64)
	HomeAngle() float64
	NeutralAngle() float64

	// Angle reports the joint's last known or estimated angle.
	Angle() Reading

	// SetAngle commands the angle immediately. Out-of-range targets are
	// clamped, never rejected. For a continuous joint this is a timed
	// move at full speed and blocks until it completes.
	SetAngle(ctx context.Context, degrees float64) error

	// MoveTo commands the angle with motion shaping. For a position
	// joint, speed is in degrees per second (<= 0 means immediate) and
	// blocking selects whether interpolation steps are paced in real
	// time. A continuous joint is inherently blocking and reads speed
	// as a throttle factor (see speedFactor).
	MoveTo(ctx context.Context, degrees, speed float64, blocking bool) error

	// Stop halts a continuous joint by issuing its stop pulse. It is a
	// no-op for position joints.
	Stop(ctx context.Context) error

	// Disable shuts the channel off. Stored angle state is retained, so
	// a later move resumes from the last belief - but holding torque is
	// lost and the arm may sag meanwhile.
	Disable() error
}

// base carries the identity and calibration shared by both joint modes.
type base struct {
	name     JointName
	channel  int
	minAngle float64
	maxAngle float64
	minPulse int
	maxPulse int
	home     float64
	neutral  float64
	offset   float64
	invert   bool

	out PulseOutput
	log logrus.FieldLogger
}

func newBase(name JointName, cfg JointConfig, out PulseOutput, log logrus.FieldLogger) (base, error) {
	if out == nil {
		return base{}, fmt.Errorf("joint %s: nil pulse output", name)
	}
	if cfg.Channel < MinChannel || cfg.Channel > MaxChannel {
		return base{}, fmt.Errorf("joint %s: channel %d out of range %d..%d", name, cfg.Channel, MinChannel, MaxChannel)
	}
	if cfg.MinAngle > cfg.MaxAngle {
		return base{}, fmt.Errorf("joint %s: min angle %.1f above max %.1f", name, cfg.MinAngle, cfg.MaxAngle)
	}
	if cfg.MinPulse >= cfg.MaxPulse {
		return base{}, fmt.Errorf("joint %s: pulse range %d..%d is degenerate", name, cfg.MinPulse, cfg.MaxPulse)
	}
	if cfg.MinPulse < 0 || cfg.MaxPulse > MaxPulseMicros {
		return base{}, fmt.Errorf("joint %s: pulse range %d..%d outside 0..%d", name, cfg.MinPulse, cfg.MaxPulse, MaxPulseMicros)
	}
	if cfg.Home < cfg.MinAngle || cfg.Home > cfg.MaxAngle {
		return base{}, fmt.Errorf("joint %s: home %.1f outside %.1f..%.1f", name, cfg.Home, cfg.MinAngle, cfg.MaxAngle)
	}
	if cfg.Neutral < cfg.MinAngle || cfg.Neutral > cfg.MaxAngle {
		return base{}, fmt.Errorf("joint %s: neutral %.1f outside %.1f..%.1f", name, cfg.Neutral, cfg.MinAngle, cfg.MaxAngle)
	}
	if log == nil {
		log = logrus.New()
	}

	return base{
		name:     name,
		channel:  cfg.Channel,
		minAngle: cfg.MinAngle,
		maxAngle: cfg.MaxAngle,
		minPulse: cfg.MinPulse,
		maxPulse: cfg.MaxPulse,
		home:     cfg.Home,
		neutral:  cfg.Neutral,
		offset:   cfg.OffsetDeg,
		invert:   cfg.Invert,
		out:      out,
		log:      log.WithField("joint", string(name)),
	}, nil
}

func (b *base) Name() JointName            { return b.name }
func (b *base) Channel() int               { return b.channel }
func (b *base) Limits() (min, max float64) { return b.minAngle, b.maxAngle }
func (b *base) HomeAngle() float64         { return b.home }
func (b *base) NeutralAngle() float64      { return b.neutral }

// clampAngle clamps into the joint's range. Out-of-range commands are a
// warning, never an error: an upstream coordinate bug must not be able
// to drive a physical over-travel.
func (b *base) clampAngle(a float64) float64 {
	if a < b.minAngle {
		b.log.WithFields(logrus.Fields{"angle": a, "min": b.minAngle}).Warn("angle below minimum, clamping")
		return b.minAngle
	}
	if a > b.maxAngle {
		b.log.WithFields(logrus.Fields{"angle": a, "max": b.maxAngle}).Warn("angle above maximum, clamping")
		return b.maxAngle
	}
	return a
}

// pulseFor maps a logical angle to a pulse width, applying calibration.
func (b *base) pulseFor(angle float64) int {
	cal := calibrated(angle, b.offset, b.invert, b.minAngle, b.maxAngle)
	return angleToPulse(cal, b.minAngle, b.maxAngle, b.minPulse, b.maxPulse)
}

func (b *base) Disable() error {
	b.log.Info("disabling output")
	if err := b.out.DisableChannel(b.channel); err != nil {
		return fmt.Errorf("disable %s: %w", b.name, err)
	}
	return nil
}

// NewJoint builds the joint variant selected by cfg.Mode. The config
// must already have defaults and any calibration overlay applied.
func NewJoint(name JointName, cfg JointConfig, out PulseOutput, log logrus.FieldLogger) (Joint, error) {
	switch cfg.Mode {
	case ModePosition:
		return NewPositionJoint(name, cfg, out, log)
	case ModeContinuous:
		return NewContinuousJoint(name, cfg, out, log)
	default:
		return nil, fmt.Errorf("joint %s: unknown mode %q", name, cfg.Mode)
	}
}

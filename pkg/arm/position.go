package arm

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

// PositionJoint is a standard hobby servo: the pulse width encodes an
// absolute angle, which the servo holds as long as the pulse repeats.
type PositionJoint struct {
	base
	rate float64 // interpolation samples per second

	mu      sync.Mutex
	current float64
	known   bool
	target  float64
}

// NewPositionJoint builds a position-mode joint from cfg.
func NewPositionJoint(name JointName, cfg JointConfig, out PulseOutput, log logrus.FieldLogger) (*PositionJoint, error) {
	b, err := newBase(name, cfg, out, log)
	if err != nil {
		return nil, err
	}
	if cfg.SmoothingRate <= 0 {
		return nil, fmt.Errorf("joint %s: smoothing rate %.1f must be positive", name, cfg.SmoothingRate)
	}

	b.log.WithFields(logrus.Fields{
		"channel": cfg.Channel,
		"range":   fmt.Sprintf("%.0f..%.0f", cfg.MinAngle, cfg.MaxAngle),
		"home":    cfg.Home,
	}).Info("position joint ready")

	return &PositionJoint{base: b, rate: cfg.SmoothingRate}, nil
}

// Angle reports the last commanded angle. Known is false until the
// first command after startup.
func (j *PositionJoint) Angle() Reading {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Reading{Degrees: j.current, Known: j.known}
}

// SetAngle clamps the target and commands it immediately.
func (j *PositionJoint) SetAngle(_ context.Context, degrees float64) error {
	return j.set(j.clampAngle(degrees))
}

// set issues the pulse for an already-validated angle. State is only
// updated once the output accepts the pulse, so a transport failure
// leaves the last known angle intact.
func (j *PositionJoint) set(a float64) error {
	pulse := j.pulseFor(a)
	if err := j.out.SetPulseWidth(j.channel, pulse); err != nil {
		return fmt.Errorf("set %s angle: %w", j.name, err)
	}

	j.mu.Lock()
	j.current = a
	j.known = true
	j.target = a
	j.mu.Unlock()

	j.log.WithFields(logrus.Fields{"angle": a, "pulse": pulse}).Debug("set angle")
	return nil
}

// MoveTo moves to the target with linear interpolation at the given
// speed in degrees per second. With speed unset, or before the joint
// has ever been commanded, the move is immediate. When blocking is
// false all interpolation samples are issued back to back and the
// servo slews at its own pace.
func (j *PositionJoint) MoveTo(ctx context.Context, degrees, speed float64, blocking bool) error {
	target := j.clampAngle(degrees)

	j.mu.Lock()
	current, known := j.current, j.known
	j.mu.Unlock()

	if speed <= 0 || !known {
		return j.set(target)
	}

	delta := target - current
	if math.Abs(delta) < arriveDeg {
		j.mu.Lock()
		j.target = target
		j.mu.Unlock()
		return nil
	}

	if speed < minSpeed {
		speed = minSpeed
	}
	moveTime := math.Abs(delta) / speed
	steps := int(math.Round(moveTime * j.rate))
	if steps < 1 {
		steps = 1
	}
	stepDelay := seconds(moveTime / float64(steps))

	j.log.WithFields(logrus.Fields{
		"from":  current,
		"to":    target,
		"speed": speed,
		"steps": steps,
	}).Debug("smoothed move")

	for i := 0; i <= steps; i++ {
		a := current + delta*float64(i)/float64(steps)
		if err := j.set(a); err != nil {
			return err
		}
		if blocking && i < steps {
			if err := sleepCtx(ctx, stepDelay); err != nil {
				return fmt.Errorf("move %s interrupted: %w", j.name, err)
			}
		}
	}

	// Force the exact target to shed interpolation rounding.
	j.mu.Lock()
	j.current = target
	j.target = target
	j.mu.Unlock()
	return nil
}

// Stop is a no-op: a position servo holds its last commanded angle and
// does not run away.
func (j *PositionJoint) Stop(context.Context) error { return nil }

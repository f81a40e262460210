package arm

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// ContinuousJoint is a continuous-rotation servo: the pulse width
// encodes speed and direction, not position. Moves are dead reckoning,
// a drive pulse held for a calibrated duration with no feedback, so
// the reported angle is always an estimate and drifts over time.
type ContinuousJoint struct {
	base
	stopPulse  int
	speedRange int
	degPerSec  float64
	minMove    float64

	mu        sync.Mutex
	estimated float64
}

// NewContinuousJoint builds a continuous-mode joint from cfg. The
// estimated position starts at the home angle.
func NewContinuousJoint(name JointName, cfg JointConfig, out PulseOutput, log logrus.FieldLogger) (*ContinuousJoint, error) {
	b, err := newBase(name, cfg, out, log)
	if err != nil {
		return nil, err
	}
	if cfg.StopPulse <= 0 || cfg.StopPulse > MaxPulseMicros {
		return nil, fmt.Errorf("joint %s: stop pulse %d outside 1..%d", name, cfg.StopPulse, MaxPulseMicros)
	}
	if cfg.SpeedPulseRange <= 0 {
		return nil, fmt.Errorf("joint %s: speed pulse range %d must be positive", name, cfg.SpeedPulseRange)
	}
	if cfg.DegreesPerSecond <= 0 {
		return nil, fmt.Errorf("joint %s: degrees per second %.1f must be positive", name, cfg.DegreesPerSecond)
	}
	if cfg.MinMoveDeg < 0 {
		return nil, fmt.Errorf("joint %s: min move %.1f must not be negative", name, cfg.MinMoveDeg)
	}

	b.log.WithFields(logrus.Fields{
		"channel":    cfg.Channel,
		"stop_pulse": cfg.StopPulse,
		"deg_per_s":  cfg.DegreesPerSecond,
	}).Info("continuous joint ready")

	return &ContinuousJoint{
		base:       b,
		stopPulse:  cfg.StopPulse,
		speedRange: cfg.SpeedPulseRange,
		degPerSec:  cfg.DegreesPerSecond,
		minMove:    cfg.MinMoveDeg,
		estimated:  cfg.Home,
	}, nil
}

// Angle reports the dead-reckoned position estimate.
func (j *ContinuousJoint) Angle() Reading {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Reading{Degrees: j.estimated, Known: true, Estimated: true}
}

// SetAngle runs a timed move at full speed.
func (j *ContinuousJoint) SetAngle(ctx context.Context, degrees float64) error {
	return j.moveTimed(ctx, degrees, 0)
}

// MoveTo runs a timed move. Continuous moves always block: there is no
// feedback that could shorten or lengthen the drive, only the wait.
func (j *ContinuousJoint) MoveTo(ctx context.Context, degrees, speed float64, _ bool) error {
	return j.moveTimed(ctx, degrees, speed)
}

func (j *ContinuousJoint) moveTimed(ctx context.Context, degrees, speed float64) error {
	target := j.clampAngle(degrees)

	j.mu.Lock()
	start := j.estimated
	j.mu.Unlock()

	delta := target - start
	if math.Abs(delta) < j.minMove {
		j.mu.Lock()
		j.estimated = target
		j.mu.Unlock()
		j.log.WithField("target", target).Debug("within deadband, estimate updated")
		return nil
	}

	direction := 1
	if delta < 0 {
		direction = -1
	}
	if j.invert {
		direction = -direction
	}

	factor := speedFactor(speed)
	deviation := int(math.Round(float64(j.speedRange) * factor))
	if deviation < 1 {
		deviation = 1
	}
	drive := j.stopPulse + direction*deviation

	rate := j.degPerSec * factor
	if rate < minSpeed {
		rate = minSpeed
	}
	moveTime := seconds(math.Abs(delta) / rate)

	j.log.WithFields(logrus.Fields{
		"from":  start,
		"to":    target,
		"pulse": drive,
		"for":   moveTime.Round(time.Millisecond).String(),
	}).Info("timed move")

	if err := j.out.SetPulseWidth(j.channel, drive); err != nil {
		return fmt.Errorf("drive %s: %w", j.name, err)
	}

	began := time.Now()
	waitErr := sleepCtx(ctx, moveTime)

	// The stop pulse goes out on every path, including cancellation.
	stopErr := j.out.SetPulseWidth(j.channel, j.stopPulse)
	if stopErr != nil {
		stopErr = fmt.Errorf("stop %s: %w", j.name, stopErr)
	}

	if waitErr != nil {
		// Interrupted mid-drive: credit the elapsed fraction of the move
		// to the estimate. Still dead reckoning, but closer to reality
		// than either endpoint.
		frac := clamp(float64(time.Since(began))/float64(moveTime), 0, 1)
		j.mu.Lock()
		j.estimated = clamp(start+delta*frac, j.minAngle, j.maxAngle)
		j.mu.Unlock()
		return multierr.Combine(fmt.Errorf("move %s interrupted: %w", j.name, waitErr), stopErr)
	}
	if stopErr != nil {
		return stopErr
	}

	j.mu.Lock()
	j.estimated = target
	j.mu.Unlock()
	j.log.WithField("estimated", target).Debug("stopped")
	return nil
}

// Stop immediately issues the stop pulse.
func (j *ContinuousJoint) Stop(context.Context) error {
	j.log.Info("stopping")
	if err := j.out.SetPulseWidth(j.channel, j.stopPulse); err != nil {
		return fmt.Errorf("stop %s: %w", j.name, err)
	}
	return nil
}

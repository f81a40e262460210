package arm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// ErrDisabled is returned by motion commands while the arm is disabled.
var ErrDisabled = errors.New("arm is disabled")

// Coordinator owns the joints of one physical arm and turns pose and
// multi-joint commands into per-joint motion. It is constructed once
// per arm and owns its joints exclusively.
type Coordinator struct {
	out    PulseOutput
	joints map[JointName]Joint
	order  []JointName
	poses  PoseTable

	defaultSpeed float64
	pause        time.Duration
	log          logrus.FieldLogger

	mu          sync.RWMutex
	enabled     bool
	currentPose string
	haltCtx     context.Context
	haltStop    context.CancelFunc
}

// NewCoordinator builds a coordinator from a config snapshot. The
// config must already have any calibration overlay applied. A nil pose
// table is treated as empty; a nil logger logs to stderr.
func NewCoordinator(cfg *Config, out PulseOutput, poses PoseTable, log logrus.FieldLogger) (*Coordinator, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if len(cfg.Joints) == 0 {
		return nil, errors.New("config has no joints")
	}
	if log == nil {
		log = logrus.New()
	}
	if poses == nil {
		poses = PoseTable{}
	}

	joints := make(map[JointName]Joint, len(cfg.Joints))
	channels := make(map[int]JointName, len(cfg.Joints))
	for name, jc := range cfg.Joints {
		if other, taken := channels[jc.Channel]; taken {
			return nil, fmt.Errorf("joints %s and %s share channel %d", other, name, jc.Channel)
		}
		channels[jc.Channel] = name

		j, err := NewJoint(name, jc, out, log)
		if err != nil {
			return nil, err
		}
		joints[name] = j
	}

	order := make([]JointName, 0, len(joints))
	for name := range joints {
		order = append(order, name)
	}
	sort.Slice(order, func(i, k int) bool {
		return joints[order[i]].Channel() < joints[order[k]].Channel()
	})

	haltCtx, haltStop := context.WithCancel(context.Background())
	c := &Coordinator{
		out:          out,
		joints:       joints,
		order:        order,
		poses:        poses,
		defaultSpeed: cfg.Movement.DefaultSpeed,
		pause:        seconds(cfg.Movement.PauseBetween),
		log:          log,
		enabled:      true,
		haltCtx:      haltCtx,
		haltStop:     haltStop,
	}

	log.WithFields(logrus.Fields{"joints": len(joints), "poses": len(poses)}).Info("arm ready")
	return c, nil
}

// Joint returns the named joint.
func (c *Coordinator) Joint(name JointName) (Joint, bool) {
	j, ok := c.joints[name]
	return j, ok
}

// Names returns all joint names in channel order.
func (c *Coordinator) Names() []JointName {
	names := make([]JointName, len(c.order))
	copy(names, c.order)
	return names
}

// CurrentAngles reports every joint's last known or estimated angle.
func (c *Coordinator) CurrentAngles() map[JointName]Reading {
	angles := make(map[JointName]Reading, len(c.joints))
	for name, j := range c.joints {
		angles[name] = j.Angle()
	}
	return angles
}

// ListPoses returns all pose names, sorted.
func (c *Coordinator) ListPoses() []string {
	return c.poses.Names()
}

// Pose returns the named pose's angle map.
func (c *Coordinator) Pose(name string) (Pose, bool) {
	p, ok := c.poses[name]
	return p, ok
}

// CurrentPose returns the name of the last successfully reached pose,
// or "" if none.
func (c *Coordinator) CurrentPose() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentPose
}

func (c *Coordinator) allow() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.enabled {
		return ErrDisabled
	}
	return nil
}

// motionContext derives a context that is cancelled either by the
// caller or by an emergency stop / disable from another goroutine, so
// in-flight timed waits abort promptly.
func (c *Coordinator) motionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	c.mu.RLock()
	halt := c.haltCtx
	c.mu.RUnlock()

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(halt, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// SetAngles commands several joints immediately. Unknown joint names
// are reported in the aggregated error but do not stop the valid
// entries from being applied.
func (c *Coordinator) SetAngles(ctx context.Context, angles map[JointName]float64) error {
	if err := c.allow(); err != nil {
		return err
	}
	ctx, done := c.motionContext(ctx)
	defer done()

	var errs error
	applied := 0
	for _, name := range c.order {
		target, ok := angles[name]
		if !ok {
			continue
		}
		applied++
		if err := c.joints[name].SetAngle(ctx, target); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if applied != len(angles) {
		errs = multierr.Append(errs, c.unknownJoints(angles))
	}
	return errs
}

func (c *Coordinator) unknownJoints(angles map[JointName]float64) error {
	var errs error
	for name := range angles {
		if _, ok := c.joints[name]; !ok {
			c.log.WithField("joint", name).Warn("unknown joint")
			errs = multierr.Append(errs, fmt.Errorf("unknown joint %q", name))
		}
	}
	return errs
}

// MoveToAngles moves several joints so they arrive together. Position
// joints with a known angle are scaled to the slowest one's travel
// time; position joints that were never commanded jump immediately;
// continuous joints run one at a time afterwards, since their timed
// drives cannot overlap without a background execution context. With
// blocking false the position wait is skipped, but continuous joints
// still block for their drive durations.
func (c *Coordinator) MoveToAngles(ctx context.Context, angles map[JointName]float64, speed float64, blocking bool) error {
	if err := c.allow(); err != nil {
		return err
	}
	ctx, done := c.motionContext(ctx)
	defer done()

	if speed <= 0 {
		speed = c.defaultSpeed
	}
	if speed < minSpeed {
		speed = minSpeed
	}

	c.log.WithFields(logrus.Fields{"targets": len(angles), "speed": speed}).Info("coordinated move")

	// First pass: resolve joints and find the slowest position travel.
	type plan struct {
		joint  Joint
		target float64
		delta  float64
		known  bool
	}
	var positions []plan
	var continuous []plan
	maxTime := 0.0
	for _, name := range c.order {
		target, ok := angles[name]
		if !ok {
			continue
		}
		j := c.joints[name]
		if _, isCont := j.(*ContinuousJoint); isCont {
			continuous = append(continuous, plan{joint: j, target: target})
			continue
		}
		r := j.Angle()
		p := plan{joint: j, target: target, known: r.Known}
		if r.Known {
			p.delta = math.Abs(target - r.Degrees)
			if t := p.delta / speed; t > maxTime {
				maxTime = t
			}
		}
		positions = append(positions, p)
	}

	errs := c.unknownJoints(angles)

	// Second pass: dispatch position joints in channel order. Each
	// timed move gets a speed scaled to finish at maxTime, and all its
	// interpolation samples are issued without pacing; the single wait
	// below is what paces the physical motion.
	for _, p := range positions {
		var err error
		switch {
		case !p.known || maxTime <= 0:
			err = p.joint.SetAngle(ctx, p.target)
		default:
			jointSpeed := p.delta / maxTime
			if jointSpeed < minSpeed {
				jointSpeed = minSpeed
			}
			err = p.joint.MoveTo(ctx, p.target, jointSpeed, false)
		}
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if blocking && maxTime > 0 {
		if err := sleepCtx(ctx, seconds(maxTime)); err != nil {
			return multierr.Append(errs, fmt.Errorf("move interrupted: %w", err))
		}
	}

	for _, p := range continuous {
		if err := p.joint.MoveTo(ctx, p.target, speed, true); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// GoToPose moves to a named pose. An unknown pose is a failure that
// issues no motion. The pose is recorded as current only when the move
// succeeds.
func (c *Coordinator) GoToPose(ctx context.Context, name string, speed float64, blocking bool) error {
	pose, ok := c.poses[name]
	if !ok {
		c.log.WithFields(logrus.Fields{"pose": name, "available": c.poses.Names()}).Error("unknown pose")
		available := strings.Join(c.poses.Names(), ", ")
		if available == "" {
			available = "none"
		}
		return fmt.Errorf("unknown pose %q (available: %s)", name, available)
	}

	c.log.WithField("pose", name).Info("moving to pose")
	if err := c.MoveToAngles(ctx, pose, speed, blocking); err != nil {
		return fmt.Errorf("pose %s: %w", name, err)
	}

	c.mu.Lock()
	c.currentPose = name
	c.mu.Unlock()
	return nil
}

// Home moves every joint to the home pose, falling back to all-zero
// targets when no such pose is loaded, so the arm has a safe default
// even with no pose data at all.
func (c *Coordinator) Home(ctx context.Context, speed float64, blocking bool) error {
	if _, ok := c.poses[PoseHome]; ok {
		return c.GoToPose(ctx, PoseHome, speed, blocking)
	}
	return c.MoveToAngles(ctx, c.zeroPose(), speed, blocking)
}

// Neutral moves every joint to the neutral pose, with the same
// fallback as Home.
func (c *Coordinator) Neutral(ctx context.Context, speed float64, blocking bool) error {
	if _, ok := c.poses[PoseNeutral]; ok {
		return c.GoToPose(ctx, PoseNeutral, speed, blocking)
	}
	return c.MoveToAngles(ctx, c.zeroPose(), speed, blocking)
}

func (c *Coordinator) zeroPose() map[JointName]float64 {
	pose := make(map[JointName]float64, len(c.joints))
	for name := range c.joints {
		pose[name] = 0
	}
	return pose
}

// ExecuteSequence runs a choreographed sequence, each step fully
// blocking. The sequence stops at the first failing step; the error
// names the failing step's 1-based index. A missed step must not be
// skipped over, because continuous joints' positions are estimates and
// compounding a miss would make them worthless.
func (c *Coordinator) ExecuteSequence(ctx context.Context, seq Sequence) error {
	c.log.WithField("steps", len(seq)).Info("executing sequence")

	for i, step := range seq {
		c.log.WithFields(logrus.Fields{
			"step": i + 1,
			"of":   len(seq),
			"pose": step.Pose,
		}).Info("sequence step")

		if err := c.GoToPose(ctx, step.Pose, step.Speed, true); err != nil {
			return fmt.Errorf("sequence step %d (%s): %w", i+1, step.Pose, err)
		}

		pause := seconds(step.Pause)
		if step.Pause == 0 {
			pause = c.pause
		}
		if pause > 0 {
			if err := sleepCtx(ctx, pause); err != nil {
				return fmt.Errorf("sequence step %d (%s): %w", i+1, step.Pose, err)
			}
		}
	}

	c.log.Info("sequence complete")
	return nil
}

// EmergencyStop aborts any in-flight motion, issues stop pulses to all
// continuous joints, then disables every output. The arm refuses
// motion until Enable is called.
func (c *Coordinator) EmergencyStop() error {
	c.log.Warn("emergency stop")

	c.mu.Lock()
	c.enabled = false
	c.haltStop()
	c.mu.Unlock()

	var errs error
	for _, name := range c.order {
		if err := c.joints[name].Stop(context.Background()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	for _, name := range c.order {
		if err := c.joints[name].Disable(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Disable aborts in-flight motion and shuts all outputs off. Joints
// keep their angle state, but motion commands fail until Enable.
func (c *Coordinator) Disable() error {
	c.log.Info("disabling arm")

	c.mu.Lock()
	c.enabled = false
	c.haltStop()
	c.mu.Unlock()

	var errs error
	for _, name := range c.order {
		if err := c.joints[name].Disable(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Enable re-arms motion commands after a Disable or EmergencyStop.
// Joints resume from their last known or estimated angles.
func (c *Coordinator) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return
	}
	c.enabled = true
	c.haltCtx, c.haltStop = context.WithCancel(context.Background())
	c.log.Info("arm enabled")
}

// Close performs an emergency stop and releases the output transport.
// It is safe to call on every exit path.
func (c *Coordinator) Close() error {
	errs := c.EmergencyStop()
	if closer, ok := c.out.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close output: %w", err))
		}
	}
	return errs
}

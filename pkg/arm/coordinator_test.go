package arm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/trashbot/trasharm/pkg/pwm"
)

func testConfig() *Config {
	return &Config{
		Bus:          "1",
		Address:      0x40,
		PWMFrequency: 50,
		Joints: map[JointName]JointConfig{
			Shoulder: {
				Channel: 0, Mode: ModePosition,
				MinAngle: 0, MaxAngle: 180,
				MinPulse: 500, MaxPulse: 2500,
				SmoothingRate: 10,
			},
			Elbow: {
				Channel: 1, Mode: ModeContinuous,
				MinAngle: 0, MaxAngle: 180,
				MinPulse: 500, MaxPulse: 2500,
				StopPulse: 1500, SpeedPulseRange: 100,
				DegreesPerSecond: 3600, MinMoveDeg: 1,
			},
			Gripper: {
				Channel: 2, Mode: ModePosition,
				MinAngle: 0, MaxAngle: 90,
				MinPulse: 500, MaxPulse: 2500,
				SmoothingRate: 10,
			},
		},
		Movement: MovementConfig{DefaultSpeed: 50, PauseBetween: 0.05},
	}
}

func testCoordinator(t *testing.T, poses PoseTable) (*Coordinator, *pwm.Simulator) {
	t.Helper()
	sim := pwm.NewSimulator(nil)
	c, err := NewCoordinator(testConfig(), sim, poses, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return c, sim
}

func TestNewCoordinator_Validation(t *testing.T) {
	sim := pwm.NewSimulator(nil)

	if _, err := NewCoordinator(nil, sim, nil, testLogger()); err == nil {
		t.Error("nil config should fail")
	}
	if _, err := NewCoordinator(&Config{}, sim, nil, testLogger()); err == nil {
		t.Error("config without joints should fail")
	}

	cfg := testConfig()
	jc := cfg.Joints[Gripper]
	jc.Channel = 0 // collides with shoulder
	cfg.Joints[Gripper] = jc
	_, err := NewCoordinator(cfg, sim, nil, testLogger())
	if err == nil || !strings.Contains(err.Error(), "share channel") {
		t.Errorf("duplicate channel error = %v", err)
	}
}

func TestCoordinator_Names(t *testing.T) {
	c, _ := testCoordinator(t, nil)

	names := c.Names()
	want := []JointName{Shoulder, Elbow, Gripper} // channel order
	if len(names) != len(want) {
		t.Fatalf("Names() = %v", names)
	}
	for i, n := range names {
		if n != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, n, want[i])
		}
	}
}

func TestCoordinator_SetAngles(t *testing.T) {
	c, sim := testCoordinator(t, nil)

	err := c.SetAngles(context.Background(), map[JointName]float64{
		Shoulder: 90,
		Gripper:  45,
	})
	if err != nil {
		t.Fatal(err)
	}

	if pulse, _ := sim.LastPulse(0); pulse != 1500 {
		t.Errorf("shoulder pulse = %d, want 1500", pulse)
	}
	if pulse, _ := sim.LastPulse(2); pulse != 1500 {
		t.Errorf("gripper pulse = %d, want 1500", pulse)
	}
	if writes := sim.ChannelWrites(1); len(writes) != 0 {
		t.Errorf("untargeted elbow wrote %+v", writes)
	}

	angles := c.CurrentAngles()
	if len(angles) != 3 {
		t.Fatalf("CurrentAngles() has %d joints", len(angles))
	}
	if r := angles[Shoulder]; !r.Known || r.Degrees != 90 {
		t.Errorf("shoulder = %+v, want known 90", r)
	}
	if r := angles[Elbow]; !r.Estimated {
		t.Errorf("elbow = %+v, want estimated", r)
	}
}

func TestCoordinator_SetAngles_UnknownJoint(t *testing.T) {
	c, sim := testCoordinator(t, nil)

	err := c.SetAngles(context.Background(), map[JointName]float64{
		Shoulder: 90,
		"wrist":  10,
	})
	if err == nil || !strings.Contains(err.Error(), `unknown joint "wrist"`) {
		t.Errorf("error = %v", err)
	}

	// The valid entry is still applied.
	if pulse, _ := sim.LastPulse(0); pulse != 1500 {
		t.Errorf("shoulder pulse = %d, want 1500", pulse)
	}
}

func TestCoordinator_MoveToAngles_Synchronized(t *testing.T) {
	c, sim := testCoordinator(t, nil)
	ctx := context.Background()

	err := c.SetAngles(ctx, map[JointName]float64{Shoulder: 0, Gripper: 0})
	if err != nil {
		t.Fatal(err)
	}

	// Shoulder travels 90 degrees, gripper 45. At 180 deg/s the slowest
	// joint needs 500ms, and the gripper is slowed to match.
	began := time.Now()
	err = c.MoveToAngles(ctx, map[JointName]float64{Shoulder: 90, Gripper: 45}, 180, true)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(began); elapsed < 500*time.Millisecond {
		t.Errorf("move took %v, want at least 500ms", elapsed)
	}

	shoulderWrites := sim.ChannelWrites(0)
	gripperWrites := sim.ChannelWrites(2)
	if len(shoulderWrites) != 7 || len(gripperWrites) != 7 {
		t.Fatalf("writes = %d/%d, want 1 prime + 6 samples each",
			len(shoulderWrites), len(gripperWrites))
	}
	if last := shoulderWrites[6].Micros; last != 1500 {
		t.Errorf("shoulder final pulse = %d, want 1500", last)
	}
	if last := gripperWrites[6].Micros; last != 1500 {
		t.Errorf("gripper final pulse = %d, want 1500", last)
	}

	angles := c.CurrentAngles()
	if angles[Shoulder].Degrees != 90 || angles[Gripper].Degrees != 45 {
		t.Errorf("angles = %+v, want 90/45", angles)
	}
}

func TestCoordinator_MoveToAngles_ImmediateWhenUnknown(t *testing.T) {
	c, sim := testCoordinator(t, nil)

	// Never-commanded joints jump: there is no start angle to pace from.
	began := time.Now()
	err := c.MoveToAngles(context.Background(), map[JointName]float64{Shoulder: 90}, 50, true)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(began); elapsed > 100*time.Millisecond {
		t.Errorf("move took %v, want immediate", elapsed)
	}
	if writes := sim.ChannelWrites(0); len(writes) != 1 || writes[0].Micros != 1500 {
		t.Errorf("writes = %+v, want single 1500", writes)
	}
}

func TestCoordinator_DisableBlocksMotion(t *testing.T) {
	c, sim := testCoordinator(t, nil)
	ctx := context.Background()

	if err := c.Disable(); err != nil {
		t.Fatal(err)
	}
	for ch := 0; ch <= 2; ch++ {
		if !sim.Disabled(ch) {
			t.Errorf("channel %d not disabled", ch)
		}
	}

	before := len(sim.Writes())
	if err := c.SetAngles(ctx, map[JointName]float64{Shoulder: 90}); !errors.Is(err, ErrDisabled) {
		t.Errorf("SetAngles = %v, want ErrDisabled", err)
	}
	if err := c.MoveToAngles(ctx, map[JointName]float64{Shoulder: 90}, 50, true); !errors.Is(err, ErrDisabled) {
		t.Errorf("MoveToAngles = %v, want ErrDisabled", err)
	}
	if after := len(sim.Writes()); after != before {
		t.Errorf("disabled arm wrote %d commands", after-before)
	}

	c.Enable()
	if err := c.SetAngles(ctx, map[JointName]float64{Shoulder: 90}); err != nil {
		t.Errorf("after Enable: %v", err)
	}
}

func TestCoordinator_EmergencyStop(t *testing.T) {
	c, sim := testCoordinator(t, nil)

	if err := c.SetAngles(context.Background(), map[JointName]float64{Shoulder: 90}); err != nil {
		t.Fatal(err)
	}
	if err := c.EmergencyStop(); err != nil {
		t.Fatal(err)
	}

	// Continuous joints get their stop pulse before anything is disabled,
	// then every channel shuts off in channel order.
	writes := sim.Writes()
	if len(writes) != 5 {
		t.Fatalf("writes = %+v", writes)
	}
	tail := writes[1:]
	if tail[0].Channel != 1 || tail[0].Micros != 1500 || tail[0].Disable {
		t.Errorf("first stop write = %+v, want elbow stop pulse", tail[0])
	}
	for i, ch := range []int{0, 1, 2} {
		w := tail[1+i]
		if w.Channel != ch || !w.Disable {
			t.Errorf("disable write %d = %+v, want channel %d off", i, w, ch)
		}
	}

	// Angle state survives the stop.
	if r := c.CurrentAngles()[Shoulder]; !r.Known || r.Degrees != 90 {
		t.Errorf("shoulder = %+v after stop, want known 90", r)
	}
}

func TestCoordinator_EmergencyStop_AbortsMove(t *testing.T) {
	c, _ := testCoordinator(t, nil)
	ctx := context.Background()

	if err := c.SetAngles(ctx, map[JointName]float64{Shoulder: 0}); err != nil {
		t.Fatal(err)
	}

	// A 10s blocking move, stopped from another goroutine.
	moveErr := make(chan error, 1)
	began := time.Now()
	go func() {
		moveErr <- c.MoveToAngles(ctx, map[JointName]float64{Shoulder: 90}, 9, true)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := c.EmergencyStop(); err != nil {
		t.Fatal(err)
	}

	err := <-moveErr
	if !errors.Is(err, context.Canceled) {
		t.Errorf("aborted move = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(began); elapsed > 2*time.Second {
		t.Errorf("abort took %v", elapsed)
	}
}

func TestCoordinator_GoToPose(t *testing.T) {
	poses := PoseTable{
		"ready": {Shoulder: 90, Elbow: 0, Gripper: 0},
	}
	c, sim := testCoordinator(t, poses)
	ctx := context.Background()

	if err := c.GoToPose(ctx, "ready", 0, false); err != nil {
		t.Fatal(err)
	}
	if got := c.CurrentPose(); got != "ready" {
		t.Errorf("CurrentPose() = %q, want ready", got)
	}
	if pulse, _ := sim.LastPulse(0); pulse != 1500 {
		t.Errorf("shoulder pulse = %d, want 1500", pulse)
	}

	before := len(sim.Writes())
	err := c.GoToPose(ctx, "bogus", 0, false)
	if err == nil || !strings.Contains(err.Error(), `unknown pose "bogus"`) {
		t.Errorf("error = %v", err)
	}
	if got := c.CurrentPose(); got != "ready" {
		t.Errorf("CurrentPose() = %q after failed pose, want ready", got)
	}
	if after := len(sim.Writes()); after != before {
		t.Error("unknown pose issued motion")
	}
}

func TestCoordinator_Home(t *testing.T) {
	poses := PoseTable{
		PoseHome: {Shoulder: 10, Elbow: 0, Gripper: 0},
	}
	c, sim := testCoordinator(t, poses)

	if err := c.Home(context.Background(), 0, false); err != nil {
		t.Fatal(err)
	}
	if got := c.CurrentPose(); got != PoseHome {
		t.Errorf("CurrentPose() = %q, want home", got)
	}
	if pulse, _ := sim.LastPulse(0); pulse != 611 {
		t.Errorf("shoulder pulse = %d, want 611", pulse)
	}
}

func TestCoordinator_Home_FallbackAllZero(t *testing.T) {
	c, sim := testCoordinator(t, nil)

	// With no pose table the home targets are all zero.
	if err := c.Home(context.Background(), 0, false); err != nil {
		t.Fatal(err)
	}
	if pulse, _ := sim.LastPulse(0); pulse != 500 {
		t.Errorf("shoulder pulse = %d, want 500", pulse)
	}
	if pulse, _ := sim.LastPulse(2); pulse != 500 {
		t.Errorf("gripper pulse = %d, want 500", pulse)
	}
	if got := c.CurrentPose(); got != "" {
		t.Errorf("CurrentPose() = %q, want empty", got)
	}
}

func TestCoordinator_ExecuteSequence(t *testing.T) {
	poses := PoseTable{
		"ready": {Shoulder: 90, Elbow: 0, Gripper: 0},
	}
	c, _ := testCoordinator(t, poses)

	seq := Sequence{
		{Pose: "ready", Pause: -1},
		{Pose: "bogus", Pause: -1},
	}
	err := c.ExecuteSequence(context.Background(), seq)
	if err == nil || !strings.Contains(err.Error(), "step 2") {
		t.Errorf("error = %v, want step 2 failure", err)
	}
	// The arm stays where the last good step left it.
	if got := c.CurrentPose(); got != "ready" {
		t.Errorf("CurrentPose() = %q, want ready", got)
	}

	if err := c.ExecuteSequence(context.Background(), Sequence{{Pose: "ready", Pause: -1}}); err != nil {
		t.Errorf("valid sequence = %v", err)
	}
}

func TestCoordinator_ExecuteSequence_Pauses(t *testing.T) {
	poses := PoseTable{
		"ready": {Shoulder: 90, Elbow: 0, Gripper: 0},
	}
	c, _ := testCoordinator(t, poses)
	ctx := context.Background()

	// Explicit pause.
	began := time.Now()
	if err := c.ExecuteSequence(ctx, Sequence{{Pose: "ready", Pause: 0.2}}); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(began); elapsed < 200*time.Millisecond {
		t.Errorf("sequence took %v, want at least the 200ms pause", elapsed)
	}

	// Zero pause uses the configured default (50ms here).
	began = time.Now()
	if err := c.ExecuteSequence(ctx, Sequence{{Pose: "ready"}}); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(began); elapsed < 50*time.Millisecond {
		t.Errorf("sequence took %v, want at least the default pause", elapsed)
	}
}

type closingOutput struct {
	*pwm.Simulator
	closed bool
}

func (c *closingOutput) Close() error {
	c.closed = true
	return nil
}

func TestCoordinator_Close(t *testing.T) {
	out := &closingOutput{Simulator: pwm.NewSimulator(nil)}
	c, err := NewCoordinator(testConfig(), out, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if !out.closed {
		t.Error("Close did not release the output")
	}
	for ch := 0; ch <= 2; ch++ {
		if !out.Disabled(ch) {
			t.Errorf("channel %d not disabled", ch)
		}
	}
}

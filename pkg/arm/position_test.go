package arm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trashbot/trasharm/pkg/pwm"
)

func testPositionJoint(t *testing.T, sim *pwm.Simulator) *PositionJoint {
	t.Helper()
	j, err := NewPositionJoint(Shoulder, validPositionConfig(), sim, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func TestPositionJoint_SetAngle(t *testing.T) {
	sim := pwm.NewSimulator(nil)
	j := testPositionJoint(t, sim)
	ctx := context.Background()

	if r := j.Angle(); r.Known {
		t.Errorf("fresh joint Angle() = %+v, want unknown", r)
	}

	if err := j.SetAngle(ctx, 90); err != nil {
		t.Fatal(err)
	}
	if pulse, ok := sim.LastPulse(0); !ok || pulse != 1500 {
		t.Errorf("pulse = %d, want 1500", pulse)
	}

	r := j.Angle()
	if !r.Known || r.Degrees != 90 || r.Estimated {
		t.Errorf("Angle() = %+v, want known exact 90", r)
	}
}

func TestPositionJoint_SetAngle_Clamps(t *testing.T) {
	sim := pwm.NewSimulator(nil)
	j := testPositionJoint(t, sim)
	ctx := context.Background()

	if err := j.SetAngle(ctx, 200); err != nil {
		t.Fatal(err)
	}
	if pulse, _ := sim.LastPulse(0); pulse != 2500 {
		t.Errorf("pulse = %d, want clamped 2500", pulse)
	}
	if r := j.Angle(); r.Degrees != 180 {
		t.Errorf("Angle() = %f, want clamped 180", r.Degrees)
	}

	if err := j.SetAngle(ctx, -45); err != nil {
		t.Fatal(err)
	}
	if pulse, _ := sim.LastPulse(0); pulse != 500 {
		t.Errorf("pulse = %d, want clamped 500", pulse)
	}
}

func TestPositionJoint_MoveTo_ImmediateWhenUnknown(t *testing.T) {
	sim := pwm.NewSimulator(nil)
	j := testPositionJoint(t, sim)

	// No known starting angle means nothing to interpolate from.
	began := time.Now()
	if err := j.MoveTo(context.Background(), 90, 50, true); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(began); elapsed > 100*time.Millisecond {
		t.Errorf("immediate move took %v", elapsed)
	}

	writes := sim.ChannelWrites(0)
	if len(writes) != 1 || writes[0].Micros != 1500 {
		t.Errorf("writes = %+v, want single 1500", writes)
	}
}

func TestPositionJoint_MoveTo_ImmediateWhenSpeedUnset(t *testing.T) {
	sim := pwm.NewSimulator(nil)
	j := testPositionJoint(t, sim)
	ctx := context.Background()

	if err := j.SetAngle(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if err := j.MoveTo(ctx, 90, 0, true); err != nil {
		t.Fatal(err)
	}

	writes := sim.ChannelWrites(0)
	if len(writes) != 2 {
		t.Fatalf("got %d writes, want 2", len(writes))
	}
	if writes[1].Micros != 1500 {
		t.Errorf("final pulse = %d, want 1500", writes[1].Micros)
	}
}

func TestPositionJoint_MoveTo_Deadband(t *testing.T) {
	sim := pwm.NewSimulator(nil)
	j := testPositionJoint(t, sim)
	ctx := context.Background()

	if err := j.SetAngle(ctx, 90); err != nil {
		t.Fatal(err)
	}
	before := len(sim.ChannelWrites(0))

	// Under half a degree away counts as already arrived.
	if err := j.MoveTo(ctx, 90.2, 50, true); err != nil {
		t.Fatal(err)
	}
	if after := len(sim.ChannelWrites(0)); after != before {
		t.Errorf("deadband move issued %d pulses", after-before)
	}
}

func TestPositionJoint_MoveTo_Interpolates(t *testing.T) {
	sim := pwm.NewSimulator(nil)
	j := testPositionJoint(t, sim)
	ctx := context.Background()

	if err := j.SetAngle(ctx, 0); err != nil {
		t.Fatal(err)
	}
	// 90 degrees at 90 deg/s with 10 samples/s: 10 steps, 11 samples.
	if err := j.MoveTo(ctx, 90, 90, false); err != nil {
		t.Fatal(err)
	}

	writes := sim.ChannelWrites(0)
	if len(writes) != 12 {
		t.Fatalf("got %d writes, want 1 + 11 samples", len(writes))
	}
	for i, w := range writes[1:] {
		want := 500 + i*100
		if w.Micros != want {
			t.Errorf("sample %d = %dµs, want %d", i, w.Micros, want)
		}
	}

	if r := j.Angle(); r.Degrees != 90 {
		t.Errorf("Angle() = %f, want exact target 90", r.Degrees)
	}
}

func TestPositionJoint_MoveTo_BlockingPaces(t *testing.T) {
	sim := pwm.NewSimulator(nil)
	j := testPositionJoint(t, sim)
	ctx := context.Background()

	if err := j.SetAngle(ctx, 0); err != nil {
		t.Fatal(err)
	}

	// 90 degrees at 450 deg/s is a 200ms move in 2 steps.
	began := time.Now()
	if err := j.MoveTo(ctx, 90, 450, true); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(began); elapsed < 200*time.Millisecond {
		t.Errorf("blocking move took %v, want at least 200ms", elapsed)
	}

	writes := sim.ChannelWrites(0)
	if len(writes) != 4 {
		t.Fatalf("got %d writes, want 1 + 3 samples", len(writes))
	}
	wantPulses := []int{500, 500, 1000, 1500} // prime, then samples at 0, 45, 90
	for i, w := range writes {
		if w.Micros != wantPulses[i] {
			t.Errorf("write %d = %dµs, want %d", i, w.Micros, wantPulses[i])
		}
	}
}

func TestPositionJoint_MoveTo_Cancelled(t *testing.T) {
	sim := pwm.NewSimulator(nil)
	j := testPositionJoint(t, sim)

	if err := j.SetAngle(context.Background(), 0); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// 10s move, interrupted almost immediately.
	began := time.Now()
	err := j.MoveTo(ctx, 90, 9, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("MoveTo = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(began); elapsed > time.Second {
		t.Errorf("cancelled move took %v", elapsed)
	}

	// The move stopped early, so the joint is still near the start.
	if r := j.Angle(); !r.Known || r.Degrees > 10 {
		t.Errorf("Angle() = %+v after cancel, want near 0", r)
	}
}

func TestPositionJoint_SetAngle_OutputFailure(t *testing.T) {
	wantErr := errors.New("bus gone")
	j, err := NewPositionJoint(Shoulder, validPositionConfig(), failOutput{wantErr}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := j.SetAngle(context.Background(), 90); !errors.Is(err, wantErr) {
		t.Errorf("SetAngle = %v, want wrapped %v", err, wantErr)
	}
	// A rejected pulse must not update the angle belief.
	if r := j.Angle(); r.Known {
		t.Errorf("Angle() = %+v after failed write, want unknown", r)
	}
}

func TestPositionJoint_Stop(t *testing.T) {
	sim := pwm.NewSimulator(nil)
	j := testPositionJoint(t, sim)

	if err := j.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if writes := sim.Writes(); len(writes) != 0 {
		t.Errorf("Stop wrote %+v, want nothing", writes)
	}
}

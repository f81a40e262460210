package arm

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestCalibration_Apply(t *testing.T) {
	cfg := DefaultConfig()
	cal := Calibration{
		Shoulder: {
			MinPulse:  600,
			MaxPulse:  2400,
			OffsetDeg: 5,
			Invert:    true,
		},
		Elbow: {
			StopPulse:        1520,
			DegreesPerSecond: 90,
		},
	}

	cal.Apply(cfg)

	sh := cfg.Joints[Shoulder]
	if sh.MinPulse != 600 || sh.MaxPulse != 2400 {
		t.Errorf("shoulder pulses = %d..%d, want 600..2400", sh.MinPulse, sh.MaxPulse)
	}
	if sh.OffsetDeg != 5 || !sh.Invert {
		t.Errorf("shoulder offset/invert = %f/%t", sh.OffsetDeg, sh.Invert)
	}

	// Zero pulse fields keep the configured values.
	el := cfg.Joints[Elbow]
	if el.MinPulse != 500 || el.MaxPulse != 2500 {
		t.Errorf("elbow pulses changed: %d..%d", el.MinPulse, el.MaxPulse)
	}
	if el.StopPulse != 1520 {
		t.Errorf("elbow stop pulse = %d, want 1520", el.StopPulse)
	}
	if el.DegreesPerSecond != 90 {
		t.Errorf("elbow degrees per second = %f, want 90", el.DegreesPerSecond)
	}

	// Joints without an entry are untouched.
	gr := cfg.Joints[Gripper]
	if gr.OffsetDeg != 0 || gr.Invert {
		t.Errorf("gripper changed: %+v", gr)
	}
}

func TestCalibration_Apply_IgnoresUnknownJoints(t *testing.T) {
	cfg := DefaultConfig()
	cal := Calibration{"wrist": {MinPulse: 700}}

	cal.Apply(cfg)
	if _, ok := cfg.Joints["wrist"]; ok {
		t.Error("Apply invented a joint")
	}
}

func TestCalibration_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")

	cal := Calibration{
		Shoulder: {MinPulse: 610, MaxPulse: 2390, OffsetDeg: -2.5},
		Elbow:    {StopPulse: 1480, DegreesPerSecond: 132, Invert: true},
	}
	if err := cal.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadCalibration(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cal, loaded) {
		t.Errorf("round trip changed calibration:\nsaved  %+v\nloaded %+v", cal, loaded)
	}
}

func TestLoadCalibration_Missing(t *testing.T) {
	if _, err := LoadCalibration(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("missing file should fail")
	}
}

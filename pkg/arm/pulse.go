package arm

import (
	"context"
	"math"
	"time"
)

const (
	// arriveDeg is the deadband below which a smoothed position move is
	// treated as already arrived.
	arriveDeg = 0.5

	// minSpeed floors commanded speeds to keep move timing finite.
	minSpeed = 1e-6
)

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// calibrated applies the offset/invert calibration to a logical angle.
// Inversion mirrors the angle within [minAngle, maxAngle], so a
// physically flipped servo can be compensated without touching pose data.
func calibrated(angle, offset float64, invert bool, minAngle, maxAngle float64) float64 {
	a := angle + offset
	if invert {
		a = maxAngle - (a - minAngle)
	}
	return a
}

// angleToPulse linearly maps an angle in [minAngle, maxAngle] onto
// [minPulse, maxPulse] microseconds. A degenerate angle range maps to
// the pulse midpoint.
func angleToPulse(angle, minAngle, maxAngle float64, minPulse, maxPulse int) int {
	if maxAngle == minAngle {
		return int(math.Round(float64(minPulse+maxPulse) / 2))
	}

	ratio := clamp((angle-minAngle)/(maxAngle-minAngle), 0, 1)
	pulse := int(math.Round(float64(minPulse) + ratio*float64(maxPulse-minPulse)))

	if pulse < minPulse {
		pulse = minPulse
	}
	if pulse > maxPulse {
		pulse = maxPulse
	}
	return pulse
}

// speedFactor normalizes a requested speed to a throttle factor in
// [0, 1] for continuous joints. Unset (<= 0) means full speed; values
// up to 1 are taken as-is; values up to 100 are read as a percentage.
func speedFactor(speed float64) float64 {
	switch {
	case speed <= 0:
		return 1.0
	case speed <= 1.0:
		return speed
	case speed <= 100.0:
		return speed / 100.0
	default:
		return 1.0
	}
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// seconds converts a duration expressed in fractional seconds.
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

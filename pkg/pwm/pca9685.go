// Package pwm provides pulse-width outputs for the arm: the PCA9685
// controller over I2C, and a simulator for tests and dry runs.
package pwm

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"
)

// Contract limits for a 16-channel controller.
const (
	minChannel     = 0
	maxChannel     = 15
	maxPulseMicros = 10000

	ticksPerPeriod = 4096
)

var (
	// ErrChannelRange reports a channel outside 0..15.
	ErrChannelRange = errors.New("pwm: channel out of range")
	// ErrPulseRange reports a pulse width outside 0..10000µs.
	ErrPulseRange = errors.New("pwm: pulse width out of range")
)

func checkChannel(channel int) error {
	if channel < minChannel || channel > maxChannel {
		return fmt.Errorf("%w: %d", ErrChannelRange, channel)
	}
	return nil
}

func checkMicros(micros int) error {
	if micros < 0 || micros > maxPulseMicros {
		return fmt.Errorf("%w: %dµs", ErrPulseRange, micros)
	}
	return nil
}

// microsToTicks converts a pulse width to 12-bit counter ticks for a
// given PWM period, clamped to the counter range.
func microsToTicks(micros int, periodMicros float64) int {
	ticks := int(math.Round(float64(micros) / periodMicros * ticksPerPeriod))
	if ticks < 0 {
		ticks = 0
	}
	if ticks > ticksPerPeriod-1 {
		ticks = ticksPerPeriod - 1
	}
	return ticks
}

// PCA9685 drives servo pulses through the 16-channel PCA9685 chip. It
// serializes register access, so one device may be shared by motion
// and emergency-stop goroutines.
type PCA9685 struct {
	mu           sync.Mutex
	dev          *pca9685.Dev
	bus          i2c.BusCloser
	freqHz       int
	periodMicros float64
}

// Open initializes the periph host, opens the named I2C bus ("1" for
// /dev/i2c-1, "" for the first available) and configures a PCA9685 at
// addr with the given PWM frequency.
func Open(busName string, addr uint16, freqHz int) (*PCA9685, error) {
	if freqHz <= 0 {
		return nil, fmt.Errorf("pwm: frequency %d must be positive", freqHz)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}

	dev, err := pca9685.NewI2C(bus, addr)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("init pca9685 at %#x: %w", addr, err)
	}
	if err := dev.SetPwmFreq(physic.Frequency(freqHz) * physic.Hertz); err != nil {
		bus.Close()
		return nil, fmt.Errorf("set pwm frequency: %w", err)
	}

	return &PCA9685{
		dev:          dev,
		bus:          bus,
		freqHz:       freqHz,
		periodMicros: 1e6 / float64(freqHz),
	}, nil
}

// Frequency returns the configured PWM frequency in Hz.
func (p *PCA9685) Frequency() int { return p.freqHz }

// SetPulseWidth drives channel with a pulse of the given width in
// microseconds.
func (p *PCA9685) SetPulseWidth(channel, micros int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if err := checkMicros(micros); err != nil {
		return err
	}

	ticks := microsToTicks(micros, p.periodMicros)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dev.SetPwm(channel, 0, gpio.Duty(ticks)); err != nil {
		return fmt.Errorf("set pwm channel %d: %w", channel, err)
	}
	return nil
}

// DisableChannel sets the channel to zero duty.
func (p *PCA9685) DisableChannel(channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dev.SetPwm(channel, 0, 0); err != nil {
		return fmt.Errorf("disable channel %d: %w", channel, err)
	}
	return nil
}

// Close shuts every channel off and releases the bus.
func (p *PCA9685) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	offErr := p.dev.SetAllPwm(0, 0)
	if err := p.bus.Close(); err != nil {
		return fmt.Errorf("close i2c bus: %w", err)
	}
	if offErr != nil {
		return fmt.Errorf("shut off outputs: %w", offErr)
	}
	return nil
}

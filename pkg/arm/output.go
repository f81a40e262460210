package arm

// Pulse output limits shared with the PWM controller.
const (
	MinChannel = 0
	MaxChannel = 15

	// MaxPulseMicros is the widest pulse the output contract accepts.
	MaxPulseMicros = 10000
)

// PulseOutput is the capability the arm needs from a PWM controller:
// command a channel to a pulse width, or shut the channel off. Both
// calls are synchronous and fast. Implementations must be safe for
// concurrent use, since an emergency stop may issue pulses from a
// different goroutine than an in-flight move.
type PulseOutput interface {
	// SetPulseWidth drives channel (0-15) with a pulse of the given
	// width in microseconds (0-10000).
	SetPulseWidth(channel, micros int) error

	// DisableChannel sets the channel to zero duty, removing holding
	// torque from the attached servo.
	DisableChannel(channel int) error
}

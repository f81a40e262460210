package pwm

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Write is one recorded output command. Disable marks a channel
// shutoff; otherwise Micros is the commanded pulse width.
type Write struct {
	Channel int
	Micros  int
	Disable bool
}

// Simulator is a pulse output that records commands instead of
// touching hardware. It backs the --simulate flag and the tests.
type Simulator struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	writes  []Write
	current map[int]int
	off     map[int]bool
}

// NewSimulator returns a simulator. A nil logger silences it.
func NewSimulator(log logrus.FieldLogger) *Simulator {
	return &Simulator{
		log:     log,
		current: make(map[int]int),
		off:     make(map[int]bool),
	}
}

// SetPulseWidth records a pulse command, applying the same bounds
// checks as the real controller.
func (s *Simulator) SetPulseWidth(channel, micros int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if err := checkMicros(micros); err != nil {
		return err
	}

	s.mu.Lock()
	s.writes = append(s.writes, Write{Channel: channel, Micros: micros})
	s.current[channel] = micros
	s.off[channel] = false
	s.mu.Unlock()

	if s.log != nil {
		s.log.WithFields(logrus.Fields{"channel": channel, "micros": micros}).Debug("simulated pulse")
	}
	return nil
}

// DisableChannel records a channel shutoff.
func (s *Simulator) DisableChannel(channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}

	s.mu.Lock()
	s.writes = append(s.writes, Write{Channel: channel, Disable: true})
	s.off[channel] = true
	s.mu.Unlock()

	if s.log != nil {
		s.log.WithField("channel", channel).Debug("simulated disable")
	}
	return nil
}

// Writes returns a copy of every recorded command, in order.
func (s *Simulator) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

// ChannelWrites returns the recorded commands for one channel, in order.
func (s *Simulator) ChannelWrites(channel int) []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Write
	for _, w := range s.writes {
		if w.Channel == channel {
			out = append(out, w)
		}
	}
	return out
}

// LastPulse returns the latest pulse width commanded on a channel, and
// whether one was ever commanded.
func (s *Simulator) LastPulse(channel int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	micros, ok := s.current[channel]
	return micros, ok
}

// Disabled reports whether the channel's most recent command was a
// shutoff.
func (s *Simulator) Disabled(channel int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.off[channel]
}

// Reset clears the recorded history.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
	s.current = make(map[int]int)
	s.off = make(map[int]bool)
}

// Package choreo runs arm sequences on a background goroutine while
// streaming joint state and log lines for live display.
package choreo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trashbot/trasharm/pkg/arm"
)

// State is a snapshot of the arm while a sequence runs.
type State struct {
	Angles    map[arm.JointName]arm.Reading
	Pose      string
	Timestamp time.Time

	// Done is set on the final state; Err carries the sequence result.
	Done bool
	Err  error
}

// Config holds configuration for a Runner.
type Config struct {
	Arm      *arm.Coordinator
	Sequence arm.Sequence
	// Hz is the state snapshot rate for display. Defaults to 20.
	Hz int
}

// Runner executes one sequence while publishing states and logs.
type Runner struct {
	arm *arm.Coordinator
	seq arm.Sequence
	hz  int

	mu      sync.Mutex
	running bool

	stateCh chan State
	logCh   chan string
}

// NewRunner creates a runner for the given arm and sequence.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Arm == nil {
		return nil, fmt.Errorf("no arm")
	}
	if len(cfg.Sequence) == 0 {
		return nil, fmt.Errorf("empty sequence")
	}
	if cfg.Hz <= 0 {
		cfg.Hz = 20
	}

	return &Runner{
		arm:     cfg.Arm,
		seq:     cfg.Sequence,
		hz:      cfg.Hz,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}, nil
}

// States returns a channel that receives state snapshots.
func (r *Runner) States() <-chan State {
	return r.stateCh
}

// Logs returns a channel that receives log messages.
func (r *Runner) Logs() <-chan string {
	return r.logCh
}

// Hz returns the snapshot rate.
func (r *Runner) Hz() int {
	return r.hz
}

// LogHook returns a logrus hook that forwards log entries to the log
// channel, so the TUI can show what the core is doing without writing
// to the terminal underneath it.
func (r *Runner) LogHook() logrus.Hook {
	return chanHook{r}
}

type chanHook struct{ r *Runner }

func (h chanHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h chanHook) Fire(e *logrus.Entry) error {
	h.r.log("%s %s", levelTag(e.Level), e.Message)
	return nil
}

func levelTag(l logrus.Level) string {
	switch l {
	case logrus.WarnLevel:
		return "[warn]"
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return "[err ]"
	default:
		return "[info]"
	}
}

func (r *Runner) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case r.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start executes the sequence, streaming states until it completes or
// ctx is cancelled. Cancellation triggers an emergency stop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	r.log("Running sequence of %d steps", len(r.seq))

	done := make(chan error, 1)
	go func() {
		done <- r.arm.ExecuteSequence(ctx, r.seq)
	}()

	ticker := time.NewTicker(time.Second / time.Duration(r.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log("Cancelled, stopping arm")
			if err := r.arm.EmergencyStop(); err != nil {
				r.log("Emergency stop: %v", err)
			}
			<-done
			r.sendState(State{
				Angles:    r.arm.CurrentAngles(),
				Pose:      r.arm.CurrentPose(),
				Timestamp: time.Now(),
				Done:      true,
				Err:       ctx.Err(),
			})
			return ctx.Err()

		case err := <-done:
			if err != nil {
				r.log("Sequence failed: %v", err)
			} else {
				r.log("Sequence complete")
			}
			r.sendState(State{
				Angles:    r.arm.CurrentAngles(),
				Pose:      r.arm.CurrentPose(),
				Timestamp: time.Now(),
				Done:      true,
				Err:       err,
			})
			return err

		case <-ticker.C:
			r.step()
		}
	}
}

func (r *Runner) step() {
	r.sendState(State{
		Angles:    r.arm.CurrentAngles(),
		Pose:      r.arm.CurrentPose(),
		Timestamp: time.Now(),
	})
}

func (r *Runner) sendState(s State) {
	select {
	case r.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-r.stateCh:
		default:
		}
		r.stateCh <- s
	}
}

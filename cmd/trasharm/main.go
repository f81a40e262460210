package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/trashbot/trasharm/pkg/arm"
	"github.com/trashbot/trasharm/pkg/pwm"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"trasharm.yaml" description:"Arm configuration file"`
	Simulate bool   `long:"simulate" description:"Record pulses instead of driving hardware"`
	Verbose  bool   `short:"v" long:"verbose" description:"Enable debug logging"`

	Calibrate CalibrateCommand `command:"calibrate" description:"Measure servo pulse ranges and save them to calibration.json"`
	Pose      PoseCommand      `command:"pose" description:"Move the arm to a named pose"`
	Demo      DemoCommand      `command:"demo" description:"Run a built-in demo sequence"`
	Sequence  SequenceCommand  `command:"sequence" alias:"seq" description:"Run a sequence from a YAML file"`
	Poke      PokeCommand      `command:"poke" description:"Jog single joints interactively"`
	Stop      StopCommand      `command:"stop" description:"Emergency stop: halt motion and disable all outputs"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Trasharm - servo arm control for the trashbot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	if opts.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// loadSetup assembles the effective arm description: the config file
// (or the stock arm when there is none), with the calibration overlay
// applied, plus the pose table.
func loadSetup(log logrus.FieldLogger) (*arm.Config, arm.PoseTable) {
	cfg, err := arm.LoadConfigFrom(opts.Config)
	if err != nil {
		log.WithField("file", opts.Config).Info("no config file, using stock arm")
		cfg = arm.DefaultConfig()
	}

	if cal, err := arm.LoadCalibration(arm.DefaultCalibrationFile); err == nil {
		cal.Apply(cfg)
		log.WithField("joints", len(cal)).Debug("calibration applied")
	}

	poses, err := arm.LoadPoses(arm.DefaultPosesFile)
	if err != nil {
		poses = arm.DefaultPoses()
	}
	return cfg, poses
}

func openOutput(cfg *arm.Config, log logrus.FieldLogger) (arm.PulseOutput, error) {
	if opts.Simulate {
		log.Info("simulating, no hardware will move")
		return pwm.NewSimulator(log), nil
	}
	p, err := pwm.Open(cfg.Bus, cfg.Address, cfg.PWMFrequency)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func openArm(log *logrus.Logger) (*arm.Coordinator, error) {
	cfg, poses := loadSetup(log)
	out, err := openOutput(cfg, log)
	if err != nil {
		return nil, err
	}
	return arm.NewCoordinator(cfg, out, poses, log)
}

// interruptContext is cancelled by Ctrl-C, so an in-flight move aborts
// and the deferred Close can bring the arm to a safe state.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func report(err error, success string) error {
	switch {
	case err == nil:
		fmt.Println(successStyle.Render(success))
		return nil
	case errors.Is(err, context.Canceled):
		fmt.Println("Stopped.")
		return nil
	default:
		return err
	}
}

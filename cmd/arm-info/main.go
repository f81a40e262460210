package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"go.bug.st/serial"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/trashbot/trasharm/pkg/arm"
	"github.com/trashbot/trasharm/pkg/pwm"
)

func main() {
	fmt.Println("🤖 Trasharm Hardware Probe")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	cfg := loadOrOfferConfig()
	printJoints(cfg)

	out := probePWM(cfg)
	if out != nil {
		offerBlip(cfg, out)
		out.Close()
	}

	listSerialPorts()

	fmt.Println("Calibrate the arm with:")
	fmt.Println("  go run ./cmd/trasharm calibrate")
}

func loadOrOfferConfig() *arm.Config {
	cfg, err := arm.LoadConfig()
	if err == nil {
		fmt.Printf("Using %s\n\n", arm.DefaultConfigFile)
		return cfg
	}

	fmt.Printf("No %s found.\n", arm.DefaultConfigFile)

	write := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Write the stock three-joint configuration?").
				Affirmative("Yes").
				Negative("No").
				Value(&write),
		),
	)
	if err := form.Run(); err != nil {
		os.Exit(0)
	}

	cfg = arm.DefaultConfig()
	if write {
		if err := cfg.Save(); err != nil {
			fmt.Printf("Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Stock configuration saved to %s\n", arm.DefaultConfigFile)
	}
	fmt.Println()
	return cfg
}

func jointsByChannel(cfg *arm.Config) []arm.JointName {
	names := make([]arm.JointName, 0, len(cfg.Joints))
	for name := range cfg.Joints {
		names = append(names, name)
	}
	sort.Slice(names, func(i, k int) bool {
		return cfg.Joints[names[i]].Channel < cfg.Joints[names[k]].Channel
	})
	return names
}

func printJoints(cfg *arm.Config) {
	fmt.Printf("Bus %q, address %#x, %d Hz:\n", cfg.Bus, cfg.Address, cfg.PWMFrequency)
	for _, name := range jointsByChannel(cfg) {
		jc := cfg.Joints[name]
		fmt.Printf("  channel %2d  %-10s %-10s %g..%g°\n", jc.Channel, name, jc.Mode, jc.MinAngle, jc.MaxAngle)
	}
	fmt.Println()
}

func probePWM(cfg *arm.Config) *pwm.PCA9685 {
	if _, err := host.Init(); err != nil {
		fmt.Printf("Error initializing host drivers: %v\n", err)
		os.Exit(1)
	}

	refs := i2creg.All()
	if len(refs) == 0 {
		fmt.Println("No I²C buses found.")
		fmt.Println("On a Raspberry Pi, enable the bus with raspi-config first.")
		fmt.Println()
		return nil
	}

	fmt.Println("I²C buses:")
	for _, ref := range refs {
		line := "  " + ref.Name
		if len(ref.Aliases) > 0 {
			line += " (" + strings.Join(ref.Aliases, ", ") + ")"
		}
		fmt.Println(line)
	}
	fmt.Println()

	out, err := pwm.Open(cfg.Bus, cfg.Address, cfg.PWMFrequency)
	if err != nil {
		fmt.Printf("✗ No PCA9685 at %#x on bus %q: %v\n\n", cfg.Address, cfg.Bus, err)
		return nil
	}

	fmt.Printf("✓ PCA9685 answering at %#x on bus %q\n\n", cfg.Address, cfg.Bus)
	return out
}

// offerBlip drives each configured channel for a moment so miswired
// servos show up before calibration. Continuous joints get their stop
// pulse and should not move.
func offerBlip(cfg *arm.Config, out *pwm.PCA9685) {
	blip := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Pulse each configured channel to verify the wiring?").
				Description("Position joints twitch to mid-travel. Keep the arm clear.").
				Affirmative("Yes").
				Negative("No").
				Value(&blip),
		),
	)
	if err := form.Run(); err != nil || !blip {
		fmt.Println()
		return
	}

	for _, name := range jointsByChannel(cfg) {
		jc := cfg.Joints[name]
		micros := (jc.MinPulse + jc.MaxPulse) / 2
		if jc.Mode == arm.ModeContinuous {
			micros = jc.StopPulse
		}
		if err := out.SetPulseWidth(jc.Channel, micros); err != nil {
			fmt.Printf("  channel %d (%s): %v\n", jc.Channel, name, err)
			continue
		}
		time.Sleep(300 * time.Millisecond)
		out.DisableChannel(jc.Channel)
		fmt.Printf("  channel %d (%s): pulsed %dµs\n", jc.Channel, name, micros)
	}
	fmt.Println()
}

func listSerialPorts() {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing serial ports: %v\n", err)
		return
	}

	fmt.Println("Serial ports (the drive base controller speaks serial):")
	shown := 0
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		fmt.Printf("  %s\n", port)
		shown++
	}
	if shown == 0 {
		fmt.Println("  (none)")
	}
	fmt.Println()
}

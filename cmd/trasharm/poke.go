package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/trashbot/trasharm/pkg/arm"
)

type PokeCommand struct {
	Speed float64 `short:"s" long:"speed" description:"Move speed in degrees per second (0 = immediate)"`
}

// Execute loops a joint picker so individual servos can be exercised
// without writing a pose file first.
func (c *PokeCommand) Execute(args []string) error {
	log := newLogger()
	a, err := openArm(log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := interruptContext()
	defer cancel()

	fmt.Println(headerStyle.Render("Trasharm Poke"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━"))
	fmt.Println()

	for {
		printReadings(a)

		name, done := pickPokeJoint(a)
		if done {
			fmt.Println(successStyle.Render("Outputs released."))
			return nil
		}

		angle, ok := askAngle(a, name)
		if !ok {
			continue
		}

		if err := a.MoveToAngles(ctx, arm.Pose{name: angle}, c.Speed, true); err != nil {
			return report(err, "")
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("%s at %.1f°", name, angle)))
		fmt.Println()
	}
}

func printReadings(a *arm.Coordinator) {
	angles := a.CurrentAngles()

	rows := make([][]string, 0, len(angles))
	for _, name := range a.Names() {
		r := angles[name]
		angle := "-"
		source := "unknown"
		if r.Known {
			angle = fmt.Sprintf("%.1f°", r.Degrees)
			source = "commanded"
			if r.Estimated {
				source = "estimated"
			}
		}
		rows = append(rows, []string{string(name), angle, source})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Angle", "Source").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Println(t.Render())
}

func pickPokeJoint(a *arm.Coordinator) (arm.JointName, bool) {
	names := a.Names()
	options := make([]huh.Option[string], 0, len(names)+1)
	for _, name := range names {
		options = append(options, huh.NewOption(string(name), string(name)))
	}
	options = append(options, huh.NewOption("Done", ""))

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which joint?").
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return "", true
	}
	return arm.JointName(choice), choice == ""
}

func askAngle(a *arm.Coordinator, name arm.JointName) (float64, bool) {
	j, ok := a.Joint(name)
	if !ok {
		return 0, false
	}
	min, max := j.Limits()

	var s string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Target angle for %s (%.0f..%.0f°)", name, min, max)).
				Value(&s).
				Validate(func(v string) error {
					_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
					return err
				}),
		),
	)
	if err := form.Run(); err != nil {
		return 0, false
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

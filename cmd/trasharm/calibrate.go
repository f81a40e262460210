package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/trashbot/trasharm/pkg/arm"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type CalibrateCommand struct{}

func (c *CalibrateCommand) Execute(args []string) error {
	log := newLogger()
	cfg, _ := loadSetup(log)

	out, err := openOutput(cfg, log)
	if err != nil {
		return err
	}
	defer releaseOutput(out, cfg)

	fmt.Println(headerStyle.Render("Trasharm Calibration"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println()
	fmt.Println("Servos will move. Keep the arm's travel clear.")
	fmt.Println()

	cal := existingCalibration()

	for {
		name, done := pickJoint(cfg, cal)
		if done {
			break
		}

		jc := cfg.Joints[name]
		var entry arm.JointCalibration
		if jc.Mode == arm.ModeContinuous {
			entry, err = calibrateContinuous(name, jc, out)
		} else {
			entry, err = calibratePosition(name, jc, out)
		}
		if err != nil {
			return err
		}

		cal[name] = entry
		// Save after every joint.
		if err := cal.Save(arm.DefaultCalibrationFile); err != nil {
			return err
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("%s calibrated.", name)))
		fmt.Println()
	}

	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Calibration saved to " + arm.DefaultCalibrationFile))
	fmt.Println()
	fmt.Println("Try it with: " + headerStyle.Render("trasharm demo pickup"))
	return nil
}

func existingCalibration() arm.Calibration {
	cal, err := arm.LoadCalibration(arm.DefaultCalibrationFile)
	if err != nil {
		return arm.Calibration{}
	}
	return cal
}

func pickJoint(cfg *arm.Config, cal arm.Calibration) (arm.JointName, bool) {
	names := make([]arm.JointName, 0, len(cfg.Joints))
	for name := range cfg.Joints {
		names = append(names, name)
	}
	sort.Slice(names, func(i, k int) bool {
		return cfg.Joints[names[i]].Channel < cfg.Joints[names[k]].Channel
	})

	options := make([]huh.Option[string], 0, len(names)+1)
	for _, name := range names {
		jc := cfg.Joints[name]
		label := fmt.Sprintf("%s (channel %d, %s)", name, jc.Channel, jc.Mode)
		if _, ok := cal[name]; ok {
			label += " ✓"
		}
		options = append(options, huh.NewOption(label, string(name)))
	}
	options = append(options, huh.NewOption("Done", ""))

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which joint do you want to calibrate?").
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return arm.JointName(choice), choice == ""
}

func calibratePosition(name arm.JointName, jc arm.JointConfig, out arm.PulseOutput) (arm.JointCalibration, error) {
	fmt.Println(subHeaderStyle.Render(fmt.Sprintf("━━━ %s (position) ━━━", name)))
	fmt.Println()
	fmt.Println("Jog the pulse until the joint rests at each end of its travel,")
	fmt.Println("marking the minimum and the maximum as you go.")
	fmt.Println()

	start := jc.MinPulse + (jc.MaxPulse-jc.MinPulse)/2
	m, err := runPulseModel(newPulseModel(fmt.Sprintf("Range of %s", name), jc.Channel, start, true, out))
	if err != nil {
		return arm.JointCalibration{}, err
	}

	minPulse, maxPulse := m.minMark, m.maxMark
	if minPulse > maxPulse {
		minPulse, maxPulse = maxPulse, minPulse
	}

	invert := jc.Invert
	confirm(fmt.Sprintf("Does %s move opposite to increasing angles?", name), &invert)

	offset := askFloat(fmt.Sprintf("Angle offset for %s in degrees", name), jc.OffsetDeg)

	// Park at the middle and release.
	out.SetPulseWidth(jc.Channel, (minPulse+maxPulse)/2)
	time.Sleep(500 * time.Millisecond)
	out.DisableChannel(jc.Channel)

	return arm.JointCalibration{
		MinPulse:  minPulse,
		MaxPulse:  maxPulse,
		OffsetDeg: offset,
		Invert:    invert,
	}, nil
}

// speedTestWindow is how long the full-speed measurement run drives a
// continuous joint.
const speedTestWindow = 2 * time.Second

func calibrateContinuous(name arm.JointName, jc arm.JointConfig, out arm.PulseOutput) (arm.JointCalibration, error) {
	fmt.Println(subHeaderStyle.Render(fmt.Sprintf("━━━ %s (continuous) ━━━", name)))
	fmt.Println()
	fmt.Println("First find the exact pulse at which the joint stands still.")
	fmt.Println()

	m, err := runPulseModel(newPulseModel(fmt.Sprintf("Stop pulse of %s", name), jc.Channel, jc.StopPulse, false, out))
	if err != nil {
		return arm.JointCalibration{}, err
	}
	stopPulse := m.pulse
	drive := stopPulse + jc.SpeedPulseRange

	waitForUser("Next: a short spin to check the direction. Watch which way it turns.")
	if err := out.SetPulseWidth(jc.Channel, drive); err != nil {
		return arm.JointCalibration{}, err
	}
	time.Sleep(time.Second)
	if err := out.SetPulseWidth(jc.Channel, stopPulse); err != nil {
		return arm.JointCalibration{}, err
	}

	invert := false
	confirm(fmt.Sprintf("Did %s move toward smaller angles?", name), &invert)

	waitForUser(fmt.Sprintf("Next: a %v full-speed run to measure the travel rate.", speedTestWindow))
	if err := out.SetPulseWidth(jc.Channel, drive); err != nil {
		return arm.JointCalibration{}, err
	}
	time.Sleep(speedTestWindow)
	if err := out.SetPulseWidth(jc.Channel, stopPulse); err != nil {
		return arm.JointCalibration{}, err
	}

	degrees := askFloat("How many degrees did it travel?", jc.DegreesPerSecond*speedTestWindow.Seconds())
	dps := degrees / speedTestWindow.Seconds()
	if dps <= 0 {
		dps = jc.DegreesPerSecond
	}

	out.DisableChannel(jc.Channel)

	return arm.JointCalibration{
		StopPulse:        stopPulse,
		DegreesPerSecond: dps,
		Invert:           invert,
	}, nil
}

func releaseOutput(out arm.PulseOutput, cfg *arm.Config) {
	for _, jc := range cfg.Joints {
		out.DisableChannel(jc.Channel)
	}
	if closer, ok := out.(io.Closer); ok {
		closer.Close()
	}
}

func confirm(title string, value *bool) {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(value),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
}

func askFloat(title string, initial float64) float64 {
	s := strconv.FormatFloat(initial, 'f', -1, 64)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Value(&s).
				Validate(func(v string) error {
					_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
					return err
				}),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func waitForUser(prompt string) {
	fmt.Println(prompt)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
}

const (
	pulseCoarse = 10
	pulseFine   = 1

	// Jog limits, a bit past the usual hobby-servo extremes.
	pulseJogMin = 300
	pulseJogMax = 2700
)

// pulseModel is a keyboard jog for one PWM channel. With wantRange set
// it records minimum and maximum marks; otherwise enter accepts the
// current pulse.
type pulseModel struct {
	title     string
	channel   int
	out       arm.PulseOutput
	wantRange bool

	pulse   int
	minMark int
	maxMark int

	writeErr error
	aborted  bool
	quitting bool
}

func newPulseModel(title string, channel, start int, wantRange bool, out arm.PulseOutput) pulseModel {
	return pulseModel{
		title:     title,
		channel:   channel,
		out:       out,
		wantRange: wantRange,
		pulse:     start,
	}
}

func runPulseModel(m pulseModel) (pulseModel, error) {
	// Hold the starting pulse so the joint is under control before the
	// first keypress.
	if err := m.out.SetPulseWidth(m.channel, m.pulse); err != nil {
		return m, err
	}

	p := tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		return m, err
	}

	fm := final.(pulseModel)
	if fm.aborted {
		fmt.Println()
		os.Exit(0)
	}
	return fm, nil
}

func (m pulseModel) Init() tea.Cmd {
	return nil
}

func (m *pulseModel) jog(delta int) {
	p := m.pulse + delta
	if p < pulseJogMin {
		p = pulseJogMin
	}
	if p > pulseJogMax {
		p = pulseJogMax
	}
	m.pulse = p
	m.writeErr = m.out.SetPulseWidth(m.channel, p)
}

func (m pulseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "left":
			m.jog(-pulseCoarse)
		case "right":
			m.jog(pulseCoarse)
		case "down":
			m.jog(-pulseFine)
		case "up":
			m.jog(pulseFine)
		case "m":
			if m.wantRange {
				m.minMark = m.pulse
			}
		case "M":
			if m.wantRange {
				m.maxMark = m.pulse
			}
		case "enter":
			if !m.wantRange || (m.minMark > 0 && m.maxMark > 0) {
				m.quitting = true
				return m, tea.Quit
			}
		case "q", "ctrl+c":
			m.aborted = true
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m pulseModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(subHeaderStyle.Render(m.title))
	sb.WriteString("\n\n")

	headerCell := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	labelCell := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	valueCell := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)

	rows := [][]string{{"Current", fmt.Sprintf("%d", m.pulse)}}
	if m.wantRange {
		rows = append(rows,
			[]string{"Min mark", markText(m.minMark)},
			[]string{"Max mark", markText(m.maxMark)},
		)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Setting", "Pulse (µs)").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			if col == 0 {
				return labelCell
			}
			return valueCell
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")

	if m.wantRange {
		sb.WriteString(dimStyle.Render("←/→ ±10µs · ↑/↓ ±1µs · m mark min · M mark max · enter done"))
	} else {
		sb.WriteString(dimStyle.Render("←/→ ±10µs · ↑/↓ ±1µs · enter accept"))
	}
	if m.writeErr != nil {
		sb.WriteString("\n")
		sb.WriteString("output error: " + m.writeErr.Error())
	}

	return sb.String()
}

func markText(v int) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", v)
}

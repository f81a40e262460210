package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/trashbot/trasharm/pkg/arm"
	"github.com/trashbot/trasharm/pkg/choreo"
)

type DemoCommand struct {
	Watch bool `long:"watch" description:"Show a live joint chart while the demo runs"`
	Args  struct {
		Name string `positional-arg-name:"demo"`
	} `positional-args:"yes"`
}

func (c *DemoCommand) Execute(args []string) error {
	demos := arm.Demos()

	if c.Args.Name == "" {
		fmt.Println(headerStyle.Render("Built-in demos"))
		names := make([]string, 0, len(demos))
		for name := range demos {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-10s %s\n", name, dimStyle.Render(fmt.Sprintf("%d steps", len(demos[name]))))
		}
		return nil
	}

	seq, ok := demos[c.Args.Name]
	if !ok {
		return fmt.Errorf("unknown demo %q", c.Args.Name)
	}
	return runSequence(seq, c.Watch)
}

type SequenceCommand struct {
	Watch bool `long:"watch" description:"Show a live joint chart while the sequence runs"`
	Args  struct {
		File string `positional-arg-name:"file" required:"yes"`
	} `positional-args:"yes" required:"yes"`
}

func (c *SequenceCommand) Execute(args []string) error {
	seq, err := arm.LoadSequence(c.Args.File)
	if err != nil {
		return err
	}
	return runSequence(seq, c.Watch)
}

func runSequence(seq arm.Sequence, watch bool) error {
	log := newLogger()
	a, err := openArm(log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := interruptContext()
	defer cancel()

	if !watch {
		return report(a.ExecuteSequence(ctx, seq), "Sequence complete.")
	}

	runner, err := choreo.NewRunner(choreo.Config{Arm: a, Sequence: seq})
	if err != nil {
		return err
	}

	// The TUI owns the terminal; route core logs into its log box.
	log.SetOutput(io.Discard)
	log.AddHook(runner.LogHook())

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- runner.Start(runCtx) }()

	p := tea.NewProgram(initialWatchModel(a, runner, stop), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		stop()
		<-runErr
		return err
	}

	err = <-runErr
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		fmt.Println("Stopped.")
		return nil
	}
	return report(err, "Sequence complete.")
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// jointColors assigns each joint a distinct chart color, in channel
// order, since the joint set comes from the config.
func jointColors(names []arm.JointName) map[arm.JointName]string {
	palette := []string{"196", "208", "226", "46", "51", "201"}
	colors := make(map[arm.JointName]string, len(names))
	for i, name := range names {
		colors[name] = palette[i%len(palette)]
	}
	return colors
}

type watchModel struct {
	runner *choreo.Runner
	names  []arm.JointName
	colors map[arm.JointName]string
	chart  *streamlinechart.Model
	stop   context.CancelFunc

	width      int
	height     int
	logs       []string
	pose       string
	quitting   bool
	lastAngles map[arm.JointName]float64
}

func (m *watchModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement checks if any joint angle has changed from the last state
func (m *watchModel) hasMovement(angles map[arm.JointName]float64) bool {
	if m.lastAngles == nil {
		return true // first reading, consider it movement
	}
	for name, a := range angles {
		if last, ok := m.lastAngles[name]; !ok || a != last {
			return true
		}
	}
	return false
}

// Messages from the runner
type stateMsg choreo.State
type logMsg string

func waitForState(r *choreo.Runner) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-r.States())
	}
}

func waitForLog(r *choreo.Runner) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-r.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *watchModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *watchModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialWatchModel(a *arm.Coordinator, runner *choreo.Runner, stop context.CancelFunc) watchModel {
	names := a.Names()
	colors := jointColors(names)

	// Wide enough for the stock 0..180 degree joints.
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, 180),
	)
	for _, name := range names {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(colors[name]))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return watchModel{
		runner: runner,
		names:  names,
		colors: colors,
		chart:  &chart,
		stop:   stop,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.runner),
		waitForLog(m.runner),
	)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.stop()
			return m, tea.Quit
		}

	case stateMsg:
		state := choreo.State(msg)
		m.pose = state.Pose
		if state.Angles != nil {
			angles := make(map[arm.JointName]float64, len(state.Angles))
			for name, r := range state.Angles {
				if r.Known {
					angles[name] = r.Degrees
				}
			}
			// Only update chart if there's movement (freeze when idle)
			if m.hasMovement(angles) {
				for name, a := range angles {
					m.chart.PushDataSet(string(name), a)
				}
				m.chart.DrawAll()
				m.lastAngles = angles
			}
		}
		if state.Done {
			m.quitting = true
			return m, tea.Quit
		}
		return m, waitForState(m.runner)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.runner)
	}

	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Trasharm"))
	if m.pose != "" {
		sb.WriteString(" - " + m.pose)
	}
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to stop")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m watchModel) renderLegend() string {
	var items []string
	for _, name := range m.names {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.colors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+string(name))
	}
	return strings.Join(items, "  ")
}

package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/notnil/cubemars"
)

type MonitorCommand struct {
	ConnectOptions
	Range float64 `long:"range" default:"5000" description:"Chart Y range (symmetric around zero)"`
}

const (
	monitorHeaderHeight = 2 // title + blank line
	monitorLegendHeight = 2 // legend row + blank
	monitorFooterHeight = 4 // status box height
	monitorBorderSize   = 2 // chart border
	monitorTick         = 50 * time.Millisecond
)

// Data series plotted on the shared chart.
var monitorSeries = []struct {
	name  string
	color string
	scale float64 // multiplier bringing values onto the shared Y range
	unit  string
}{
	{"position", "196", 10, "deg x10"},
	{"velocity", "226", 1, "rpm"},
	{"current", "51", 100, "A x100"},
}

var (
	monitorTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	monitorChartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	monitorStatusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type tickMsg time.Time

func monitorTickCmd() tea.Cmd {
	return tea.Tick(monitorTick, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type monitorModel struct {
	motor    *cubemars.Motor
	chart    *streamlinechart.Model
	width    int // terminal width
	height   int // terminal height
	last     cubemars.Feedback
	quitting bool
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - monitorBorderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - monitorHeaderHeight - monitorLegendHeight - monitorFooterHeight - monitorBorderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *monitorModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialMonitorModel(motor *cubemars.Motor, yRange float64) monitorModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-yRange, yRange),
	)

	for _, s := range monitorSeries {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color))
		chart.SetDataSetStyles(s.name, runes.ThinLineStyle, style)
	}

	return monitorModel{
		motor: motor,
		chart: &chart,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
			return m, tea.Quit
		}

	case tickMsg:
		fb := m.motor.Feedback()
		m.last = fb
		values := []float64{fb.Position, fb.Velocity, fb.Current}
		for i, s := range monitorSeries {
			m.chart.PushDataSet(s.name, values[i]*s.scale)
		}
		m.chart.DrawAll()
		return m, monitorTickCmd()
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(monitorTitleStyle.Render("CubeMars Monitor"))
	sb.WriteString(fmt.Sprintf(" - motor %d", m.motor.ID()))
	if m.width > 0 {
		sb.WriteString(monitorStatusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(monitorChartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderMonitorLegend())
	sb.WriteString("\n")

	// Status box
	statusBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4)

	status := formatFeedback(m.last) + "   " + monitorStatusStyle.Render("press 'q' to quit")
	sb.WriteString(statusBox.Render(status))
	sb.WriteString("\n")

	return sb.String()
}

func renderMonitorLegend() string {
	var items []string
	for _, s := range monitorSeries {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color)).Bold(true)
		item := colorStyle.Render("━━") + " " + s.name + " (" + s.unit + ")"
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

func (c *MonitorCommand) Execute(args []string) error {
	reg := c.registry()
	motor, err := reg.Open(cubemars.Config{
		Driver:  c.Driver,
		Channel: c.Channel,
		Bitrate: c.Bitrate,
		ID:      c.ID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open motor: %v\n", err)
		os.Exit(1)
	}
	defer motor.Close()

	p := tea.NewProgram(initialMonitorModel(motor, c.Range), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}

	return nil
}

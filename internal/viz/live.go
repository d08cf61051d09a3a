package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/magmc/internal/sim"
)

const (
	width           = 40
	height          = 20
	historyCapacity = 300
	frameRate       = 30
	maxPerFrame     = 1000
)

type TickMsg time.Time

// Model advances an ensemble in Metropolis mode and renders it.
type Model struct {
	ens         *sim.Ensemble
	title       string
	temperature float64
	threads     int
	perFrame    int
	sweeps      int
	running     bool
	showHelp    bool
	theme       int
	style       styles
	canvas      *Canvas
	energy      []float64
	order       []float64
	err         error
}

// NewModel wraps ens for live sampling at temperature (K).
func NewModel(ens *sim.Ensemble, title string, temperature float64, threads int) Model {
	return Model{
		ens:         ens,
		title:       title,
		temperature: temperature,
		threads:     max(threads, 1),
		perFrame:    1,
		running:     true,
		style:       newStyles(Themes[0]),
		canvas:      NewCanvas(width, height),
		energy:      make([]float64, 0, historyCapacity),
		order:       make([]float64, 0, historyCapacity),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

// Err is the error that stopped sampling, if any.
func (m Model) Err() error { return m.err }

func (m Model) Sweeps() int { return m.sweeps }

func (m Model) Temperature() float64 { return m.temperature }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running && m.err == nil
		case "up", "k":
			m.temperature *= 1.1
		case "down", "j":
			m.temperature /= 1.1
		case "+", "=":
			m.perFrame = min(2*m.perFrame, maxPerFrame)
		case "-", "_":
			m.perFrame = max(m.perFrame/2, 1)
		case "r":
			m.ens.Reset()
			m.energy = m.energy[:0]
			m.order = m.order[:0]
		case "t":
			m.theme = (m.theme + 1) % len(Themes)
			m.style = newStyles(Themes[m.theme])
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, tick()
	}
	return m, nil
}

// step runs one frame worth of sweeps and records the observables.
func (m *Model) step() {
	if err := m.ens.Run(m.temperature, m.perFrame, m.threads); err != nil {
		m.err = err
		m.running = false
		return
	}
	m.sweeps += m.perFrame

	lambda := m.ens.Lambda()
	n := float64(m.ens.NumberOfAtoms())
	e := ((1-lambda)*m.ens.CurrentEnergy(0) + lambda*m.ens.CurrentEnergy(1)) / n
	m.energy = push(m.energy, e)
	m.order = push(m.order, m.ens.OrderParameter())
}

// push appends v to a bounded history. Non-finite samples are dropped so
// the plots keep a usable range.
func push(h []float64, v float64) []float64 {
	if !finite(v) {
		return h
	}
	if len(h) == historyCapacity {
		copy(h, h[1:])
		h = h[:len(h)-1]
	}
	return append(h, v)
}

func (m Model) View() string {
	st := m.style
	m.canvas.Clear()
	m.canvas.DrawMoments(m.ens.MagneticMoments())
	canvasView := st.canvas.Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(m.title)) + "\n")
	switch {
	case m.err != nil:
		s.WriteString(st.errs.Render("STOPPED: "+m.err.Error()) + "\n\n")
	case m.running:
		s.WriteString("SAMPLING\n\n")
	default:
		s.WriteString(st.paused.Render("PAUSED") + "\n\n")
	}

	if len(m.energy) > 1 {
		chart := asciigraph.Plot(m.energy, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Energy/atom (eV)"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}
	if len(m.order) > 1 {
		chart := asciigraph.Plot(m.order, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Order parameter"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}

	row := func(label, value string) {
		s.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	row("Temperature", fmt.Sprintf("%.1f K", m.temperature))
	row("Sweeps", humanize.Comma(int64(m.sweeps)))
	row("Per frame", fmt.Sprintf("%d", m.perFrame))
	if len(m.energy) > 0 {
		row("Energy/atom", fmt.Sprintf("%.5f eV", m.energy[len(m.energy)-1]))
		row("Order", fmt.Sprintf("%.4f", m.order[len(m.order)-1]))
	}
	row("Acceptance", fmt.Sprintf("%.1f%%", 100*m.ens.AcceptanceRatio()))
	row("Throughput", humanize.SIWithDigits(m.ens.StepsPerSecond(), 1, "steps/s"))
	row("Theme", Themes[m.theme].Name)

	s.WriteString(st.help.Render("SP:Pause R:Reset Q:Quit\nT:Theme ↑↓:Temp +-:Speed ?:Help"))
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, st.stats.Render(s.String()))
	if m.showHelp {
		return helpText + "\n" + mainView
	}
	return mainView
}

const helpText = `
╔══════════════════════════════════════╗
║          KEYBOARD SHORTCUTS          ║
╠══════════════════════════════════════╣
║  Space  - Pause/Resume sampling      ║
║  Up/K   - Raise temperature (+10%)   ║
║  Down/J - Lower temperature (-10%)   ║
║  +/-    - More/fewer sweeps a frame  ║
║  R      - Reset statistics           ║
║  T      - Cycle themes               ║
║  Q      - Quit                       ║
║  ?      - Toggle this help           ║
╚══════════════════════════════════════╝`

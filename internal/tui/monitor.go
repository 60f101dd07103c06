// Package tui is a terminal monitor for the interactive demo: it shows the
// poll rate, the last keyboard events and a side view of every body.
package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/dropsim/internal/demo"
	"github.com/san-kum/dropsim/internal/engine"
)

const (
	historyLen   = 40
	canvasWidth  = 40
	canvasHeight = 10
)

// PollMsg delivers one demo poll to the monitor.
type PollMsg demo.Poll

// DoneMsg reports that the demo loop has ended.
type DoneMsg struct{ Err error }

type Monitor struct {
	title   string
	started time.Time

	ticks    int
	lastTick time.Time
	rate     float64

	keys    map[int]int
	names   []string
	poses   map[string]engine.Pose
	heights map[string][]float64

	done bool
	err  error

	width  int
	height int
}

func NewMonitor(title string) Monitor {
	return Monitor{
		title:   title,
		started: time.Now(),
		poses:   make(map[string]engine.Pose),
		heights: make(map[string][]float64),
		width:   80,
		height:  24,
	}
}

func (m Monitor) Init() tea.Cmd { return nil }

func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case PollMsg:
		m.observe(demo.Poll(msg))
		return m, nil
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *Monitor) observe(p demo.Poll) {
	if !m.lastTick.IsZero() && p.Tick > m.ticks {
		if dt := p.At.Sub(m.lastTick).Seconds(); dt > 0 {
			m.rate = float64(p.Tick-m.ticks) / dt
		}
	}
	m.ticks = p.Tick
	m.lastTick = p.At
	if len(p.Keys) > 0 {
		m.keys = p.Keys
	}
	for name, pose := range p.Poses {
		if _, seen := m.poses[name]; !seen {
			m.names = append(m.names, name)
			sort.Strings(m.names)
		}
		m.poses[name] = pose
		h := append(m.heights[name], pose.Position.Z())
		if len(h) > historyLen {
			h = h[len(h)-historyLen:]
		}
		m.heights[name] = h
	}
}

func (m Monitor) Ticks() int { return m.ticks }

func (m Monitor) Rate() float64 { return m.rate }

func (m Monitor) Bodies() []string { return append([]string(nil), m.names...) }

// Heights is the recent z history of a body, oldest first.
func (m Monitor) Heights(name string) []float64 { return m.heights[name] }

func (m Monitor) Err() error { return m.err }

func (m Monitor) View() string {
	var b strings.Builder

	status := green.Render("● live")
	if m.done {
		status = yellow.Render("■ stopped")
	}
	b.WriteString(Title.Render(m.title) + "  " + status + "\n")
	b.WriteString(Separator(min(m.width, 60)) + "\n")

	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		Label.Render("polls"), Value.Render(fmt.Sprintf("%d", m.ticks)),
		Label.Render("rate"), Value.Render(fmt.Sprintf("%.0f/s", m.rate)),
		Label.Render("up"), Value.Render(time.Since(m.started).Truncate(time.Second).String()),
	))
	b.WriteString(Label.Render("keys ") + m.keyLine() + "\n\n")

	if len(m.names) == 0 {
		b.WriteString(dim.Render("waiting for poses...") + "\n")
	} else {
		b.WriteString(Panel.Render(m.sideView()) + "\n")
		for _, name := range m.names {
			p := m.poses[name].Position
			b.WriteString(fmt.Sprintf("%-8s %s %s\n",
				cyan.Render(name),
				white.Render(fmt.Sprintf("(%7.2f %7.2f %7.2f)", p[0], p[1], p[2])),
				Sparkline(m.heights[name], 20),
			))
		}
	}

	if m.err != nil {
		b.WriteString("\n" + magenta.Render("error: "+m.err.Error()) + "\n")
	}
	b.WriteString("\n" + KeyHint.Render("q quit"))
	return b.String()
}

func (m Monitor) keyLine() string {
	if len(m.keys) == 0 {
		return dimmer.Render("none")
	}
	codes := make([]int, 0, len(m.keys))
	for k := range m.keys {
		codes = append(codes, k)
	}
	sort.Ints(codes)
	parts := make([]string, len(codes))
	for i, k := range codes {
		parts[i] = fmt.Sprintf("%d:%d", k, m.keys[k])
	}
	return white.Render(strings.Join(parts, " "))
}

// sideView plots every body on the x/z plane, framed to fit them all.
func (m Monitor) sideView() string {
	c := NewCanvas(canvasWidth, canvasHeight)
	xMin, xMax := math.Inf(1), math.Inf(-1)
	zMin, zMax := math.Inf(1), math.Inf(-1)
	for _, pose := range m.poses {
		p := pose.Position
		xMin, xMax = math.Min(xMin, p.X()), math.Max(xMax, p.X())
		zMin, zMax = math.Min(zMin, p.Z()), math.Max(zMax, p.Z())
	}
	pad := math.Max(1, 0.1*math.Max(xMax-xMin, zMax-zMin))
	xMin, xMax = xMin-pad, xMax+pad
	zMin, zMax = zMin-pad, zMax+pad

	c.HLine(0, zMin, zMax)
	for _, pose := range m.poses {
		p := pose.Position
		for dx := -1; dx <= 1; dx++ {
			c.Plot(p.X()+float64(dx)*pad/4, p.Z(), xMin, xMax, zMin, zMax)
		}
	}
	return strings.TrimRight(c.String(), "\n")
}

// Feed forwards demo polls into a running program.
type Feed struct {
	p *tea.Program
}

func NewFeed(p *tea.Program) *Feed {
	return &Feed{p: p}
}

// Observe implements demo.Observer.
func (f *Feed) Observe(p demo.Poll) {
	f.p.Send(PollMsg(p))
}

func (f *Feed) Done(err error) {
	f.p.Send(DoneMsg{Err: err})
}

package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/ktune/internal/harness"
)

const liveWindow = 400

// Feed bridges the scheduler's observer callback into a Bubble Tea
// program. OnSample never blocks the tick loop; when the UI falls
// behind, samples are dropped from the feed (the recorded series is
// unaffected).
type Feed struct {
	ch   chan sampleMsg
	done chan struct{}
}

func NewFeed() *Feed {
	return &Feed{
		ch:   make(chan sampleMsg, 256),
		done: make(chan struct{}),
	}
}

func (f *Feed) OnSample(target string, s harness.Sample) {
	select {
	case f.ch <- sampleMsg{target: target, sample: s}:
	default:
	}
}

// Finish signals the UI that the run is over. Safe to call once.
func (f *Feed) Finish() {
	close(f.done)
}

type sampleMsg struct {
	target string
	sample harness.Sample
}

type doneMsg struct{}

type trace struct {
	cmd  []float64
	meas []float64
	last harness.Sample
	n    int
}

// Model renders a rolling commanded-vs-measured plot per target while
// a test is running.
type Model struct {
	feed     *Feed
	title    string
	targets  []string
	traces   map[string]*trace
	finished bool
}

func NewModel(title string, feed *Feed) Model {
	return Model{
		feed:   feed,
		title:  title,
		traces: make(map[string]*trace),
	}
}

func (m Model) Init() tea.Cmd {
	return waitSample(m.feed)
}

func waitSample(f *Feed) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-f.ch:
			return msg
		case <-f.done:
			return doneMsg{}
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case sampleMsg:
		tr, ok := m.traces[msg.target]
		if !ok {
			tr = &trace{}
			m.traces[msg.target] = tr
			m.targets = append(m.targets, msg.target)
		}
		tr.cmd = append(tr.cmd, msg.sample.CmdPos)
		tr.meas = append(tr.meas, msg.sample.MeasPos)
		if len(tr.cmd) > liveWindow {
			tr.cmd = tr.cmd[len(tr.cmd)-liveWindow:]
			tr.meas = tr.meas[len(tr.meas)-liveWindow:]
		}
		tr.last = msg.sample
		tr.n++
		return m, waitSample(m.feed)
	case doneMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(m.title))
	b.WriteString("\n")

	if len(m.targets) == 0 {
		b.WriteString(valueStyle.Render("waiting for samples..."))
		b.WriteString("\n")
	}

	for _, name := range m.targets {
		tr := m.traces[name]
		graph := asciigraph.PlotMany([][]float64{tr.cmd, tr.meas},
			asciigraph.Height(8),
			asciigraph.Width(plotWidth),
			asciigraph.Caption(fmt.Sprintf("%s  t=%.2fs  samples=%d", name, tr.last.T, tr.n)),
			asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
			asciigraph.SeriesLegends("commanded", "measured"),
		)
		b.WriteString(graphStyle.Render(graph))
		b.WriteString("\n")
	}

	if m.finished {
		b.WriteString(okStyle.Render("run complete"))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("q: quit"))
	return b.String()
}

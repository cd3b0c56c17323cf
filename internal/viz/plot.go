package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/ktune/internal/align"
	"github.com/san-kum/ktune/internal/harness"
	"github.com/san-kum/ktune/internal/metrics"
)

const (
	plotHeight = 10
	plotWidth  = 80
)

// SeriesPlot draws commanded and measured position for one target.
func SeriesPlot(s *harness.Series) string {
	if s == nil || len(s.Samples) == 0 {
		return warnStyle.Render("no samples recorded")
	}

	cmd := make([]float64, len(s.Samples))
	meas := make([]float64, len(s.Samples))
	for i, smp := range s.Samples {
		cmd[i] = smp.CmdPos
		meas[i] = smp.MeasPos
	}

	first, last, _ := s.Span()
	caption := fmt.Sprintf("%s: position over %.2fs", s.Target, last-first)
	graph := asciigraph.PlotMany([][]float64{cmd, meas},
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
		asciigraph.SeriesLegends("commanded", "measured"),
	)
	return graphStyle.Render(graph)
}

// ComparisonPlot overlays the measured traces of an aligned sim/real pair
// on the shared time grid.
func ComparisonPlot(m *align.Merged) string {
	if m == nil || len(m.Points) == 0 {
		return warnStyle.Render("no overlapping samples to compare")
	}

	ref := make([]float64, len(m.Points))
	other := make([]float64, len(m.Points))
	for i, p := range m.Points {
		ref[i] = p.RefMeas
		other[i] = p.OtherMeas
	}

	caption := fmt.Sprintf("measured position, %s vs %s (%d aligned points)",
		m.Ref, m.Other, len(m.Points))
	graph := asciigraph.PlotMany([][]float64{ref, other},
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Magenta),
		asciigraph.SeriesLegends(m.Ref, m.Other),
	)
	return graphStyle.Render(graph)
}

// Summary formats a run report: per-target sample counts, skipped ticks,
// tracking error, and step metrics when the test was a step. The
// actuator id comes from configuration; the run spec does not carry it.
func Summary(res *harness.Result, actuatorID int, step map[string]*metrics.StepResult) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("%s test, actuator %d", res.Spec.Kind, actuatorID)))
	b.WriteString("\n")
	row(&b, "duration", fmt.Sprintf("%.2fs at %.0f Hz", res.Spec.Duration, res.Spec.SampleRate))
	row(&b, "elapsed", res.Elapsed.String())

	for _, s := range []*harness.Series{res.Sim, res.Real} {
		if s == nil {
			continue
		}
		b.WriteString("\n")
		b.WriteString(headerStyle.Render(s.Target))
		b.WriteString("\n")
		row(&b, "samples", fmt.Sprintf("%d", s.Len()))
		if s.Skipped > 0 {
			row(&b, "skipped ticks", warnStyle.Render(fmt.Sprintf("%d", s.Skipped)))
		} else {
			row(&b, "skipped ticks", okStyle.Render("0"))
		}
		if s.Aborted {
			row(&b, "aborted", warnStyle.Render(s.AbortReason))
			continue
		}

		row(&b, "rms error", fmt.Sprintf("%.4f", metrics.RMSError(s)))
		row(&b, "peak error", fmt.Sprintf("%.4f", metrics.PeakError(s)))

		if sr, ok := step[s.Target]; ok && sr != nil {
			row(&b, "max overshoot", fmt.Sprintf("%.1f%%", sr.MaxOvershoot()))
			for _, tr := range sr.Transitions {
				settle := "did not settle"
				if tr.Settled {
					settle = fmt.Sprintf("settled in %.3fs", tr.SettleTime)
				}
				row(&b, fmt.Sprintf("  edge %.1fs", tr.Edge),
					fmt.Sprintf("%.1f -> %.1f, overshoot %.1f%%, %s", tr.From, tr.To, tr.Overshoot, settle))
			}
		}
	}

	return b.String()
}

func row(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

package viz

import (
	"strings"
	"testing"
	"time"

	"github.com/san-kum/ktune/internal/align"
	"github.com/san-kum/ktune/internal/harness"
	"github.com/san-kum/ktune/internal/metrics"
)

func sampleSeries(target string, n int, dt float64) *harness.Series {
	s := &harness.Series{Target: target}
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		s.Samples = append(s.Samples, harness.Sample{T: t, CmdPos: t, MeasPos: t * 0.9})
	}
	return s
}

func TestSummaryReportsConfiguredActuator(t *testing.T) {
	res := &harness.Result{
		Spec:    harness.Spec{Kind: harness.KindSine, Freq: 1, Duration: 1, SampleRate: 50},
		Sim:     sampleSeries(harness.TargetSim, 10, 0.02),
		Elapsed: time.Second,
	}

	out := Summary(res, 42, nil)
	if !strings.Contains(out, "actuator 42") {
		t.Errorf("summary should name the configured actuator, got:\n%s", out)
	}
	if !strings.Contains(out, harness.TargetSim) {
		t.Errorf("summary should include the sim section, got:\n%s", out)
	}
	if !strings.Contains(out, "rms error") {
		t.Error("summary should report tracking error")
	}
}

func TestSummaryAbortedTarget(t *testing.T) {
	res := &harness.Result{
		Spec: harness.Spec{Kind: harness.KindStep, StepSize: 10, StepHold: 1, StepCount: 1, Duration: 3, SampleRate: 50},
		Real: &harness.Series{Target: harness.TargetReal, Aborted: true, AbortReason: "configure failed"},
		Sim:  sampleSeries(harness.TargetSim, 10, 0.02),
	}
	step := map[string]*metrics.StepResult{
		harness.TargetSim: metrics.StepResponse(res.Sim, res.Spec, metrics.DefaultSettleTolerance),
	}

	out := Summary(res, 11, step)
	if !strings.Contains(out, "configure failed") {
		t.Errorf("summary should carry the abort reason, got:\n%s", out)
	}
	if !strings.Contains(out, "max overshoot") {
		t.Error("summary should report step metrics for the surviving target")
	}
}

func TestSeriesPlot(t *testing.T) {
	out := SeriesPlot(sampleSeries(harness.TargetSim, 20, 0.05))
	if !strings.Contains(out, "commanded") || !strings.Contains(out, "measured") {
		t.Error("plot should carry both legends")
	}

	if out := SeriesPlot(&harness.Series{Target: harness.TargetSim}); !strings.Contains(out, "no samples") {
		t.Error("empty series should render a notice, not a plot")
	}
}

func TestComparisonPlot(t *testing.T) {
	sim := sampleSeries(harness.TargetSim, 20, 0.05)
	real := sampleSeries(harness.TargetReal, 10, 0.1)

	out := ComparisonPlot(align.Merge(sim, real))
	if !strings.Contains(out, "aligned points") {
		t.Errorf("comparison plot should report aligned point count, got:\n%s", out)
	}

	if out := ComparisonPlot(nil); !strings.Contains(out, "no overlapping") {
		t.Error("nil merge should render a notice")
	}
}

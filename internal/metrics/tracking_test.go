package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/ktune/internal/harness"
)

func TestTrackingErrorEchoIsZero(t *testing.T) {
	s := &harness.Series{}
	for i := 0; i < 50; i++ {
		tt := float64(i) * 0.02
		pos := 5.0 * math.Sin(2*math.Pi*tt)
		s.Samples = append(s.Samples, harness.Sample{T: tt, CmdPos: pos, MeasPos: pos})
	}

	for _, p := range TrackingError(s) {
		if p.Err != 0 {
			t.Fatalf("expected zero error at t=%f, got %f", p.T, p.Err)
		}
	}
	if RMSError(s) != 0 {
		t.Errorf("expected zero RMS error, got %f", RMSError(s))
	}
	if PeakError(s) != 0 {
		t.Errorf("expected zero peak error, got %f", PeakError(s))
	}
}

func TestTrackingErrorConstantLag(t *testing.T) {
	s := &harness.Series{}
	for i := 0; i < 100; i++ {
		tt := float64(i) * 0.01
		s.Samples = append(s.Samples, harness.Sample{T: tt, CmdPos: 10.0, MeasPos: 9.5})
	}

	pts := TrackingError(s)
	if len(pts) != 100 {
		t.Fatalf("expected 100 points, got %d", len(pts))
	}
	for _, p := range pts {
		if math.Abs(p.Err+0.5) > 1e-12 {
			t.Fatalf("expected error -0.5, got %f", p.Err)
		}
	}
	if math.Abs(RMSError(s)-0.5) > 1e-12 {
		t.Errorf("expected RMS 0.5, got %f", RMSError(s))
	}
	if math.Abs(PeakError(s)-0.5) > 1e-12 {
		t.Errorf("expected peak 0.5, got %f", PeakError(s))
	}
}

func TestTrackingErrorEmptySeries(t *testing.T) {
	s := &harness.Series{}
	if len(TrackingError(s)) != 0 {
		t.Error("expected no points for empty series")
	}
	if RMSError(s) != 0 {
		t.Error("expected zero RMS for empty series")
	}
}

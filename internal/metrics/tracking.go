package metrics

import (
	"math"

	"github.com/san-kum/ktune/internal/harness"
)

// TrackingPoint is the measured-minus-commanded position error at one
// sample instant.
type TrackingPoint struct {
	T   float64
	Err float64
}

// TrackingError returns the per-sample position error for sine and
// chirp runs.
func TrackingError(series *harness.Series) []TrackingPoint {
	pts := make([]TrackingPoint, 0, series.Len())
	for _, s := range series.Samples {
		pts = append(pts, TrackingPoint{T: s.T, Err: s.MeasPos - s.CmdPos})
	}
	return pts
}

// RMSError returns the root-mean-square tracking error.
func RMSError(series *harness.Series) float64 {
	if series.Len() == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range series.Samples {
		e := s.MeasPos - s.CmdPos
		sum += e * e
	}
	return math.Sqrt(sum / float64(series.Len()))
}

// PeakError returns the largest absolute tracking error.
func PeakError(series *harness.Series) float64 {
	peak := 0.0
	for _, s := range series.Samples {
		peak = math.Max(peak, math.Abs(s.MeasPos-s.CmdPos))
	}
	return peak
}

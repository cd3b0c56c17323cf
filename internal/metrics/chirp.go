package metrics

import (
	"math"

	"github.com/san-kum/ktune/internal/harness"
)

// EnvelopePoint is a coarse magnitude-ratio estimate at one
// instantaneous frequency of a chirp sweep.
type EnvelopePoint struct {
	Freq  float64
	Ratio float64 // measured amplitude / commanded amplitude
}

// MagnitudeEnvelope slides a window across a chirp series and, per
// window, compares measured against commanded peak amplitude. Each
// estimate is reported at the instantaneous frequency of the window
// center. Windows advance by half their width.
func MagnitudeEnvelope(series *harness.Series, spec harness.Spec, window float64) []EnvelopePoint {
	if series.Len() == 0 || window <= 0 {
		return nil
	}
	first, last, _ := series.Span()
	half := window / 2

	var pts []EnvelopePoint
	for center := first + half; center+half <= last+1e-9; center += half {
		cmdAmp, measAmp := windowAmplitudes(series.Samples, center-half, center+half)
		if cmdAmp <= 0 {
			continue
		}
		// Command holds still during the log pad, so the sweep stops
		// advancing at the test duration.
		tc := math.Min(center, spec.Duration)
		pts = append(pts, EnvelopePoint{
			Freq:  spec.InitFreq + spec.SweepRate*tc,
			Ratio: measAmp / cmdAmp,
		})
	}
	return pts
}

// windowAmplitudes returns half the peak-to-peak excursion of the
// commanded and measured positions over lo <= T <= hi.
func windowAmplitudes(samples []harness.Sample, lo, hi float64) (cmdAmp, measAmp float64) {
	cmdMin, cmdMax := math.Inf(1), math.Inf(-1)
	measMin, measMax := math.Inf(1), math.Inf(-1)
	seen := false
	for _, s := range samples {
		if s.T < lo || s.T > hi {
			continue
		}
		seen = true
		cmdMin = math.Min(cmdMin, s.CmdPos)
		cmdMax = math.Max(cmdMax, s.CmdPos)
		measMin = math.Min(measMin, s.MeasPos)
		measMax = math.Max(measMax, s.MeasPos)
	}
	if !seen {
		return 0, 0
	}
	return (cmdMax - cmdMin) / 2, (measMax - measMin) / 2
}

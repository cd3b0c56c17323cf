package metrics

import (
	"math"

	"github.com/san-kum/ktune/internal/harness"
)

// DefaultSettleTolerance is the band around the step target, as a
// fraction of step size, inside which the response counts as settled.
const DefaultSettleTolerance = 0.02

// Transition is one commanded step edge and the response measured in
// the hold window that follows it.
type Transition struct {
	Edge       float64 // time of the command edge
	From       float64
	To         float64
	Overshoot  float64 // percent of step size, clamped at zero
	Settled    bool
	SettleTime float64 // seconds after the edge, valid when Settled
}

// StepResult summarizes the measured response of one step-test series.
type StepResult struct {
	Transitions []Transition
	Tolerance   float64
}

// StepResponse derives per-transition overshoot and settle time from
// a recorded step-test series. The peak search for each transition is
// confined to that transition's hold window. Overshoot follows the
// direction of motion: upward steps look for peaks past the target,
// downward steps for troughs below it, and undershoot clamps to zero.
func StepResponse(series *harness.Series, spec harness.Spec, tolerance float64) *StepResult {
	if tolerance <= 0 {
		tolerance = DefaultSettleTolerance
	}
	res := &StepResult{Tolerance: tolerance}
	if series.Len() == 0 || spec.StepSize == 0 || spec.StepHold <= 0 {
		return res
	}

	size := math.Abs(spec.StepSize)
	band := tolerance * size

	for k := 1; k <= 2*spec.StepCount; k++ {
		edge := float64(k) * spec.StepHold

		var from, to float64
		if k%2 == 1 {
			from, to = 0, spec.StepSize
		} else {
			from, to = spec.StepSize, 0
		}

		window := windowSamples(series.Samples, edge, edge+spec.StepHold)
		if len(window) == 0 {
			continue
		}

		tr := Transition{Edge: edge, From: from, To: to}

		if to > from {
			peak := window[0].MeasPos
			for _, s := range window {
				peak = math.Max(peak, s.MeasPos)
			}
			tr.Overshoot = (peak - to) / size * 100
		} else {
			trough := window[0].MeasPos
			for _, s := range window {
				trough = math.Min(trough, s.MeasPos)
			}
			tr.Overshoot = (to - trough) / size * 100
		}
		if tr.Overshoot < 0 {
			tr.Overshoot = 0
		}

		// Settled means in-band from some sample through the end of
		// the hold, so find the last out-of-band sample.
		lastViolation := -1
		for i, s := range window {
			if math.Abs(s.MeasPos-to) > band {
				lastViolation = i
			}
		}
		if lastViolation < len(window)-1 {
			tr.Settled = true
			tr.SettleTime = window[lastViolation+1].T - edge
		}

		res.Transitions = append(res.Transitions, tr)
	}
	return res
}

// MaxOvershoot returns the worst overshoot across all transitions.
func (r *StepResult) MaxOvershoot() float64 {
	max := 0.0
	for _, tr := range r.Transitions {
		if tr.Overshoot > max {
			max = tr.Overshoot
		}
	}
	return max
}

// windowSamples returns the samples with lo <= T < hi.
func windowSamples(samples []harness.Sample, lo, hi float64) []harness.Sample {
	var out []harness.Sample
	for _, s := range samples {
		if s.T >= lo && s.T < hi {
			out = append(out, s)
		}
	}
	return out
}

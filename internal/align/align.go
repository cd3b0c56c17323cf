// Package align merges two independently-timestamped sample series
// onto a common time axis for comparison and plotting.
package align

import (
	"math"
	"sort"

	"github.com/san-kum/ktune/internal/harness"
)

// Point pairs the reference series' values at one reference timestamp
// with the other series linearly interpolated to the same instant.
type Point struct {
	T         float64
	RefCmd    float64
	RefMeas   float64
	OtherCmd  float64
	OtherMeas float64
}

// Merged is the aligned view of two series. Points cover only the
// timestamp overlap of both inputs; samples outside the overlap are
// carried in the tails untouched, never extrapolated.
type Merged struct {
	Ref   string
	Other string

	Points []Point

	RefTail   []harness.Sample
	OtherTail []harness.Sample
}

// Merge aligns two series. The denser series provides the reference
// timestamp grid; the other is interpolated onto it. Sample counts
// and tick alignment of the inputs may differ freely.
func Merge(a, b *harness.Series) *Merged {
	ref, other := a, b
	if density(b) > density(a) {
		ref, other = b, a
	}

	m := &Merged{Ref: ref.Target, Other: other.Target}

	if ref.Len() == 0 || other.Len() == 0 {
		m.RefTail = append(m.RefTail, ref.Samples...)
		m.OtherTail = append(m.OtherTail, other.Samples...)
		return m
	}

	r0, rN, _ := ref.Span()
	o0, oN, _ := other.Span()
	lo := math.Max(r0, o0)
	hi := math.Min(rN, oN)

	for _, s := range ref.Samples {
		if s.T < lo || s.T > hi {
			m.RefTail = append(m.RefTail, s)
			continue
		}
		cmd, meas := interpolate(other.Samples, s.T)
		m.Points = append(m.Points, Point{
			T:         s.T,
			RefCmd:    s.CmdPos,
			RefMeas:   s.MeasPos,
			OtherCmd:  cmd,
			OtherMeas: meas,
		})
	}
	for _, s := range other.Samples {
		if s.T < lo || s.T > hi {
			m.OtherTail = append(m.OtherTail, s)
		}
	}
	return m
}

// density estimates samples per second over a series' span.
func density(s *harness.Series) float64 {
	n := s.Len()
	if n == 0 {
		return 0
	}
	first, last, _ := s.Span()
	span := last - first
	if span <= 0 {
		return float64(n)
	}
	return float64(n) / span
}

// interpolate evaluates commanded and measured position at t, which
// must lie within the samples' time span.
func interpolate(samples []harness.Sample, t float64) (cmd, meas float64) {
	i := sort.Search(len(samples), func(i int) bool { return samples[i].T >= t })
	if i == len(samples) {
		s := samples[len(samples)-1]
		return s.CmdPos, s.MeasPos
	}
	if samples[i].T == t || i == 0 {
		return samples[i].CmdPos, samples[i].MeasPos
	}
	lo, hi := samples[i-1], samples[i]
	dt := hi.T - lo.T
	if dt <= 0 {
		return hi.CmdPos, hi.MeasPos
	}
	f := (t - lo.T) / dt
	return lo.CmdPos + f*(hi.CmdPos-lo.CmdPos), lo.MeasPos + f*(hi.MeasPos-lo.MeasPos)
}

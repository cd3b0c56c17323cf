package waveform

import "math"

// Generator produces the commanded position (and optionally velocity)
// for a given elapsed time. Implementations are pure functions of t:
// the same t always yields the same value, so independent sampling
// loops can query one shared generator at their own tick times.
type Generator interface {
	// ValueAt returns the commanded position and velocity at elapsed
	// time t >= 0. hasVel is false for waveforms that do not command
	// velocity (the step waveform).
	ValueAt(t float64) (pos, vel float64, hasVel bool)
}

// Sine commands center + amp*sin(2*pi*freq*t) with the analytic
// velocity derivative.
type Sine struct {
	Center float64
	Amp    float64
	Freq   float64
}

func NewSine(center, amp, freq float64) *Sine {
	return &Sine{Center: center, Amp: amp, Freq: freq}
}

func (s *Sine) ValueAt(t float64) (float64, float64, bool) {
	w := 2 * math.Pi * s.Freq
	pos := s.Center + s.Amp*math.Sin(w*t)
	vel := s.Amp * w * math.Cos(w*t)
	return pos, vel, true
}

// Step alternates between 0 and Size, holding each level for Hold
// seconds. Segment 0 holds at 0, then each of Count cycles steps up
// and back down. Windows are closed-open: a t exactly on a boundary
// belongs to the new segment. Past the last segment the final level
// is held. No velocity is commanded.
type Step struct {
	Size  float64
	Hold  float64
	Count int
}

func NewStep(size, hold float64, count int) *Step {
	return &Step{Size: size, Hold: hold, Count: count}
}

func (s *Step) ValueAt(t float64) (float64, float64, bool) {
	seg := int(t / s.Hold)
	last := 2 * s.Count
	if seg > last {
		seg = last
	}
	if seg%2 == 1 {
		return s.Size, 0, false
	}
	return 0, 0, false
}

// Chirp sweeps frequency linearly from InitFreq at SweepRate Hz/s.
// Position follows the integrated phase
//
//	phi(t) = 2*pi*(f0*t + r*t^2/2)
//
// not sin(2*pi*f(t)*t); the naive form doubles the effective sweep
// and breaks phase continuity. With SweepRate 0 this reduces exactly
// to a sine at InitFreq.
type Chirp struct {
	Amp       float64
	InitFreq  float64
	SweepRate float64
}

func NewChirp(amp, initFreq, sweepRate float64) *Chirp {
	return &Chirp{Amp: amp, InitFreq: initFreq, SweepRate: sweepRate}
}

func (c *Chirp) ValueAt(t float64) (float64, float64, bool) {
	phase := 2 * math.Pi * (c.InitFreq*t + 0.5*c.SweepRate*t*t)
	freq := c.InitFreq + c.SweepRate*t
	pos := c.Amp * math.Sin(phase)
	vel := c.Amp * 2 * math.Pi * freq * math.Cos(phase)
	return pos, vel, true
}

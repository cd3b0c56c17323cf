package harness

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/san-kum/ktune/internal/waveform"
)

// maxConsecutiveFailures ends a target's run once this many ticks in
// a row fail.
const maxConsecutiveFailures = 3

// Clock abstracts wall time so the tick loop can run against a fake
// clock in tests. Use RealClock for production runs.
type Clock struct {
	Now   func() time.Time
	Sleep func(time.Duration)
}

func RealClock() Clock {
	return Clock{Now: time.Now, Sleep: time.Sleep}
}

// Observer is notified of every recorded sample. Both sampling units
// share the observer list, so implementations must be safe for
// concurrent use.
type Observer interface {
	OnSample(target string, s Sample)
}

// Scheduler drives one target at a fixed cadence for a bounded
// wall-clock window, recording commanded vs measured state each tick.
type Scheduler struct {
	clock     Clock
	observers []Observer
}

func NewScheduler() *Scheduler {
	return &Scheduler{clock: RealClock()}
}

func (s *Scheduler) SetClock(c Clock)       { s.clock = c }
func (s *Scheduler) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run executes the tick loop for one target until duration+logPad has
// elapsed since epoch, the context is cancelled, or the target aborts
// on consecutive failures. The returned series is whatever was
// recorded up to that point; Run itself never fails.
//
// Tick boundaries are measured against epoch, not accumulated from
// sleeps, so the cadence does not drift. An overrun tick skips
// forward to the next boundary; missed ticks are dropped, never
// batched.
func (s *Scheduler) Run(ctx context.Context, gen waveform.Generator, target Target, spec Spec, epoch time.Time) *Series {
	capHint := int(spec.SampleRate*(spec.Duration+spec.LogPad)) + 1
	series := &Series{Target: target.Name, Samples: make([]Sample, 0, capHint)}
	period := time.Duration(float64(time.Second) / spec.SampleRate)
	stop := spec.Duration + spec.LogPad
	consecutive := 0

	for {
		select {
		case <-ctx.Done():
			logrus.Infof("%s: stop requested, returning %d samples", target.Name, len(series.Samples))
			return series
		default:
		}

		now := s.clock.Now()
		t := now.Sub(epoch).Seconds()
		if t > stop {
			break
		}

		// The command freezes at the waveform's end value during the
		// log pad; only sampling continues.
		pos, vel, hasVel := gen.ValueAt(math.Min(t, spec.Duration))
		series.HasCmdVel = hasVel

		if err := s.tick(ctx, target, pos, vel, hasVel, epoch, series); err != nil {
			if ctx.Err() != nil {
				return series
			}
			consecutive++
			series.Skipped++
			logrus.Warnf("%s: tick at t=%.3f skipped: %v", target.Name, t, err)
			if consecutive >= maxConsecutiveFailures {
				series.Aborted = true
				series.AbortReason = fmt.Sprintf("%d consecutive tick failures, last: %v", consecutive, err)
				logrus.Errorf("%s: aborting run: %s", target.Name, series.AbortReason)
				return series
			}
		} else {
			consecutive = 0
		}

		s.waitNextTick(epoch, period)
	}

	logrus.Debugf("%s: run complete, %d samples, %d skipped", target.Name, len(series.Samples), series.Skipped)
	return series
}

// tick issues one command and reads back state. A sample is appended
// only when both halves succeed, so a cancelled or failed tick never
// leaves a half-recorded sample behind. The sample carries the actual
// elapsed time at readback; scheduling jitter stays visible in the log.
func (s *Scheduler) tick(ctx context.Context, target Target, pos, vel float64, hasVel bool, epoch time.Time, series *Series) error {
	var velPtr *float64
	if hasVel {
		v := vel
		velPtr = &v
	}

	if err := target.Client.SetCommand(ctx, target.ActuatorID, pos, velPtr); err != nil {
		return errors.Wrap(err, "set command")
	}
	state, err := target.Client.ReadState(ctx, target.ActuatorID)
	if err != nil {
		return errors.Wrap(err, "read state")
	}

	sample := Sample{
		T:       s.clock.Now().Sub(epoch).Seconds(),
		CmdPos:  pos,
		CmdVel:  vel,
		MeasPos: state.Position,
		MeasVel: state.Velocity,
	}
	series.Samples = append(series.Samples, sample)
	for _, o := range s.observers {
		o.OnSample(target.Name, sample)
	}
	return nil
}

// waitNextTick sleeps until the first nominal boundary after now.
func (s *Scheduler) waitNextTick(epoch time.Time, period time.Duration) {
	now := s.clock.Now()
	n := now.Sub(epoch) / period
	next := epoch.Add(time.Duration(n+1) * period)
	if d := next.Sub(now); d > 0 {
		s.clock.Sleep(d)
	}
}

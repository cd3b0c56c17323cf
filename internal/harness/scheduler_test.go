package harness

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeClock advances only when the loop under test sleeps, making
// tick timing fully deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fakeClock) Advance(d time.Duration) { f.Sleep(d) }

func (f *fakeClock) Clock() Clock {
	return Clock{Now: f.Now, Sleep: f.Sleep}
}

// echoClient reports whatever was last commanded as the measured
// state, with zero latency.
type echoClient struct {
	mu         sync.Mutex
	lastPos    float64
	lastVel    float64
	configured int
}

func (e *echoClient) SetCommand(ctx context.Context, id int, pos float64, vel *float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastPos = pos
	if vel != nil {
		e.lastVel = *vel
	} else {
		e.lastVel = 0
	}
	return nil
}

func (e *echoClient) ReadState(ctx context.Context, id int) (ActuatorState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ActuatorState{Position: e.lastPos, Velocity: e.lastVel}, nil
}

func (e *echoClient) ConfigureActuator(ctx context.Context, id int, cfg ActuatorConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configured++
	return nil
}

// faultyClient fails SetCommand on the configured tick numbers
// (0-based), or on every tick when failAll is set.
type faultyClient struct {
	echoClient
	tick      int
	failTicks map[int]bool
	failAll   bool
}

func (f *faultyClient) SetCommand(ctx context.Context, id int, pos float64, vel *float64) error {
	n := f.tick
	f.tick++
	if f.failAll || f.failTicks[n] {
		return context.DeadlineExceeded
	}
	return f.echoClient.SetCommand(ctx, id, pos, vel)
}

func sineSpec(duration, rate, pad float64) Spec {
	return Spec{
		Kind:       KindSine,
		Amp:        5.0,
		Freq:       1.0,
		Duration:   duration,
		SampleRate: rate,
		LogPad:     pad,
	}
}

func TestSchedulerEchoTarget(t *testing.T) {
	Convey("Given an echo target and a 2s sine test at 50Hz", t, func() {
		clk := newFakeClock()
		sched := NewScheduler()
		sched.SetClock(clk.Clock())

		spec := sineSpec(2.0, 50.0, 0)
		gen, err := spec.Generator()
		So(err, ShouldBeNil)

		target := Target{Name: TargetSim, Client: &echoClient{}, ActuatorID: 11}
		series := sched.Run(context.Background(), gen, target, spec, clk.Now())

		Convey("It records one sample per tick over the full duration", func() {
			// Ticks land on 0, 0.02, ..., 2.0 inclusive.
			So(series.Len(), ShouldBeBetweenOrEqual, 100, 102)
			So(series.Skipped, ShouldEqual, 0)
			So(series.Aborted, ShouldBeFalse)
			So(series.HasCmdVel, ShouldBeTrue)
		})

		Convey("Commanded and measured columns are identical", func() {
			for _, s := range series.Samples {
				So(s.MeasPos, ShouldEqual, s.CmdPos)
				So(s.MeasVel, ShouldEqual, s.CmdVel)
			}
		})

		Convey("Timestamps are strictly increasing", func() {
			for i := 1; i < series.Len(); i++ {
				So(series.Samples[i].T, ShouldBeGreaterThan, series.Samples[i-1].T)
			}
		})
	})
}

func TestSchedulerLogPadFreezesCommand(t *testing.T) {
	Convey("Given a 1s sine test with a 0.5s log pad", t, func() {
		clk := newFakeClock()
		sched := NewScheduler()
		sched.SetClock(clk.Clock())

		spec := sineSpec(1.0, 10.0, 0.5)
		gen, _ := spec.Generator()
		target := Target{Name: TargetSim, Client: &echoClient{}, ActuatorID: 11}

		series := sched.Run(context.Background(), gen, target, spec, clk.Now())

		endPos, endVel, _ := gen.ValueAt(spec.Duration)

		Convey("Sampling continues into the pad", func() {
			_, last, ok := series.Span()
			So(ok, ShouldBeTrue)
			So(last, ShouldBeGreaterThan, spec.Duration)
		})

		Convey("Commands past the duration hold the waveform end value", func() {
			padded := 0
			for _, s := range series.Samples {
				if s.T > spec.Duration {
					padded++
					So(s.CmdPos, ShouldAlmostEqual, endPos, 1e-12)
					So(s.CmdVel, ShouldAlmostEqual, endVel, 1e-12)
				}
			}
			So(padded, ShouldBeGreaterThan, 0)
		})
	})
}

func TestSchedulerConsecutiveFailuresAbort(t *testing.T) {
	Convey("Given a target whose every command fails", t, func() {
		clk := newFakeClock()
		sched := NewScheduler()
		sched.SetClock(clk.Clock())

		spec := sineSpec(2.0, 50.0, 0)
		gen, _ := spec.Generator()
		target := Target{Name: TargetReal, Client: &faultyClient{failAll: true}, ActuatorID: 11}

		series := sched.Run(context.Background(), gen, target, spec, clk.Now())

		Convey("The run aborts after exactly three consecutive failures", func() {
			So(series.Aborted, ShouldBeTrue)
			So(series.AbortReason, ShouldNotBeEmpty)
			So(series.Skipped, ShouldEqual, 3)
			So(series.Len(), ShouldEqual, 0)
		})
	})
}

func TestSchedulerIsolatedFailuresAreSkipped(t *testing.T) {
	Convey("Given a target that fails two non-fatal ticks", t, func() {
		clk := newFakeClock()
		sched := NewScheduler()
		sched.SetClock(clk.Clock())

		spec := sineSpec(1.0, 10.0, 0)
		gen, _ := spec.Generator()
		client := &faultyClient{failTicks: map[int]bool{2: true, 5: true}}
		target := Target{Name: TargetReal, Client: client, ActuatorID: 11}

		series := sched.Run(context.Background(), gen, target, spec, clk.Now())

		Convey("The failed ticks are dropped and the run completes", func() {
			So(series.Aborted, ShouldBeFalse)
			So(series.Skipped, ShouldEqual, 2)
			// 11 nominal ticks (0..1.0 inclusive) minus the 2 skipped.
			So(series.Len(), ShouldEqual, 9)
			_, last, _ := series.Span()
			So(last, ShouldAlmostEqual, spec.Duration, 1e-9)
		})
	})
}

func TestSchedulerOverrunSkipsTicks(t *testing.T) {
	Convey("Given a target slower than the tick period", t, func() {
		clk := newFakeClock()
		sched := NewScheduler()
		sched.SetClock(clk.Clock())

		spec := sineSpec(0.2, 50.0, 0)
		gen, _ := spec.Generator()
		client := &slowClient{clk: clk, latency: 50 * time.Millisecond}
		target := Target{Name: TargetReal, Client: client, ActuatorID: 11}

		series := sched.Run(context.Background(), gen, target, spec, clk.Now())

		Convey("Missed boundaries are dropped rather than batched", func() {
			// Each tick burns 2.5 periods, so the loop lands on every
			// third boundary: 0, 0.06, 0.12, 0.18.
			So(series.Len(), ShouldEqual, 4)
			for i := 1; i < series.Len(); i++ {
				dt := series.Samples[i].T - series.Samples[i-1].T
				So(dt, ShouldAlmostEqual, 0.06, 1e-9)
			}
		})
	})
}

func TestSchedulerCancellation(t *testing.T) {
	Convey("Given a run cancelled after three samples", t, func() {
		clk := newFakeClock()
		sched := NewScheduler()
		sched.SetClock(clk.Clock())

		spec := sineSpec(10.0, 50.0, 0)
		gen, _ := spec.Generator()

		ctx, cancel := context.WithCancel(context.Background())
		client := &cancellingClient{cancel: cancel, after: 3}
		target := Target{Name: TargetSim, Client: client, ActuatorID: 11}

		series := sched.Run(ctx, gen, target, spec, clk.Now())

		Convey("The partial series is returned intact", func() {
			So(series.Len(), ShouldEqual, 3)
			So(series.Aborted, ShouldBeFalse)
		})
	})
}

func TestSchedulerSampleTimeReflectsJitter(t *testing.T) {
	Convey("Given a target with measurable readback latency", t, func() {
		clk := newFakeClock()
		sched := NewScheduler()
		sched.SetClock(clk.Clock())

		spec := sineSpec(0.1, 10.0, 0)
		gen, _ := spec.Generator()
		client := &slowClient{clk: clk, latency: 3 * time.Millisecond}
		target := Target{Name: TargetReal, Client: client, ActuatorID: 11}

		series := sched.Run(context.Background(), gen, target, spec, clk.Now())

		Convey("Timestamps carry the actual elapsed time, not the nominal tick", func() {
			So(series.Len(), ShouldBeGreaterThan, 0)
			for i, s := range series.Samples {
				nominal := float64(i) * 0.1
				So(s.T, ShouldAlmostEqual, nominal+0.003, 1e-9)
			}
		})
	})
}

// slowClient advances the fake clock during readback to simulate I/O
// latency.
type slowClient struct {
	echoClient
	clk     *fakeClock
	latency time.Duration
}

func (s *slowClient) ReadState(ctx context.Context, id int) (ActuatorState, error) {
	s.clk.Advance(s.latency)
	return s.echoClient.ReadState(ctx, id)
}

// cancellingClient cancels the run context once it has served the
// configured number of commands.
type cancellingClient struct {
	echoClient
	cancel context.CancelFunc
	after  int
	served int
}

func (c *cancellingClient) SetCommand(ctx context.Context, id int, pos float64, vel *float64) error {
	c.served++
	if c.served >= c.after {
		c.cancel()
	}
	return c.echoClient.SetCommand(ctx, id, pos, vel)
}

func TestWaitNextTickMath(t *testing.T) {
	Convey("The next boundary is computed from the epoch, not summed sleeps", t, func() {
		clk := newFakeClock()
		sched := NewScheduler()
		sched.SetClock(clk.Clock())

		epoch := clk.Now()
		period := 20 * time.Millisecond

		// Mid-period: sleep to the next boundary.
		clk.Advance(30 * time.Millisecond)
		sched.waitNextTick(epoch, period)
		So(clk.Now().Sub(epoch), ShouldEqual, 40*time.Millisecond)

		// Far overrun: skip to the first boundary after now.
		clk.Advance(67 * time.Millisecond)
		sched.waitNextTick(epoch, period)
		So(clk.Now().Sub(epoch), ShouldEqual, 120*time.Millisecond)
	})
}

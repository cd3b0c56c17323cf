package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner executes one spec against the simulator and/or the real
// robot concurrently. Both sampling units share one generator and one
// start epoch, so the command streams are time-aligned by
// construction even when the sample series jitter independently.
type Runner struct {
	scheduler *Scheduler
	clock     Clock
}

func NewRunner() *Runner {
	return &Runner{scheduler: NewScheduler(), clock: RealClock()}
}

// SetClock replaces wall time for the runner and its scheduler.
func (r *Runner) SetClock(c Clock) {
	r.clock = c
	r.scheduler.SetClock(c)
}

func (r *Runner) AddObserver(o Observer) { r.scheduler.AddObserver(o) }

// Run is the sole entry point: it validates the spec, configures the
// present targets, fixes a shared start epoch behind a readiness
// barrier, and runs one sampling unit per target to completion.
// Either target may be nil. Per-tick failures and single-target
// aborts are absorbed into the Result; only an invalid spec, no
// configured targets, or no reachable target surface as errors.
func (r *Runner) Run(ctx context.Context, spec Spec, sim, real *Target) (*Result, error) {
	gen, err := spec.Generator()
	if err != nil {
		return nil, err
	}

	var targets []*Target
	if sim != nil {
		sim.Name = TargetSim
		targets = append(targets, sim)
	}
	if real != nil {
		real.Name = TargetReal
		targets = append(targets, real)
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	result := &Result{Spec: spec}

	// Gains and limits are applied once, off the hot path. A target
	// that cannot be configured never starts; its series records the
	// reason and the run proceeds with the other side.
	live := targets[:0]
	for _, t := range targets {
		if err := t.Client.ConfigureActuator(ctx, t.ActuatorID, t.Config); err != nil {
			logrus.Errorf("%s: actuator %d configure failed, unit will not start: %v", t.Name, t.ActuatorID, err)
			r.setSeries(result, &Series{
				Target:      t.Name,
				Aborted:     true,
				AbortReason: fmt.Sprintf("configure failed: %v", err),
			})
			continue
		}
		live = append(live, t)
	}
	if len(live) == 0 {
		return nil, ErrAllTargetsUnreachable
	}

	// Start barrier: every unit signals readiness before the epoch is
	// fixed, so both sides agree on t=0. The epoch write is published
	// to the units by the close of start.
	var (
		ready   sync.WaitGroup
		start   = make(chan struct{})
		epoch   time.Time
		results = make(chan *Series, len(live))
	)
	ready.Add(len(live))
	for _, t := range live {
		go func(t Target) {
			ready.Done()
			<-start
			results <- r.scheduler.Run(ctx, gen, t, spec, epoch)
		}(*t)
	}
	ready.Wait()
	epoch = r.clock.Now()
	result.StartedAt = epoch
	close(start)

	for range live {
		r.setSeries(result, <-results)
	}
	result.Elapsed = r.clock.Now().Sub(epoch)

	logrus.Infof("run finished in %s: sim=%d real=%d samples", result.Elapsed, result.Sim.Len(), result.Real.Len())
	return result, nil
}

func (r *Runner) setSeries(result *Result, series *Series) {
	switch series.Target {
	case TargetSim:
		result.Sim = series
	case TargetReal:
		result.Real = series
	}
}

package harness

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/san-kum/ktune/internal/waveform"
)

// Kind selects the test waveform.
type Kind string

const (
	KindSine  Kind = "sine"
	KindStep  Kind = "step"
	KindChirp Kind = "chirp"
)

// Target labels for the two sides of a comparison run.
const (
	TargetSim  = "sim"
	TargetReal = "real"
)

// Spec is the immutable descriptor of one test run. It is built once
// from configuration and validated before any sampling unit starts.
type Spec struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// Sine parameters.
	Center float64 `json:"center,omitempty" yaml:"center"`
	Amp    float64 `json:"amp,omitempty" yaml:"amp"`
	Freq   float64 `json:"freq,omitempty" yaml:"freq"`

	// Step parameters.
	StepSize  float64 `json:"step_size,omitempty" yaml:"step_size"`
	StepHold  float64 `json:"step_hold,omitempty" yaml:"step_hold"`
	StepCount int     `json:"step_count,omitempty" yaml:"step_count"`

	// Chirp parameters. Amp is shared with sine.
	InitFreq  float64 `json:"init_freq,omitempty" yaml:"init_freq"`
	SweepRate float64 `json:"sweep_rate,omitempty" yaml:"sweep_rate"`

	Duration   float64 `json:"duration" yaml:"duration"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
	LogPad     float64 `json:"log_pad" yaml:"log_pad"`
}

func (s Spec) Validate() error {
	if s.Duration <= 0 {
		return errors.Wrapf(ErrInvalidSpec, "duration must be positive, got %f", s.Duration)
	}
	if s.SampleRate <= 0 {
		return errors.Wrapf(ErrInvalidSpec, "sample rate must be positive, got %f", s.SampleRate)
	}
	if s.LogPad < 0 {
		return errors.Wrapf(ErrInvalidSpec, "log pad must not be negative, got %f", s.LogPad)
	}
	switch s.Kind {
	case KindSine:
		if s.Freq <= 0 {
			return errors.Wrapf(ErrInvalidSpec, "sine frequency must be positive, got %f", s.Freq)
		}
	case KindStep:
		if s.StepCount < 1 {
			return errors.Wrapf(ErrInvalidSpec, "step count must be >= 1, got %d", s.StepCount)
		}
		if s.StepHold <= 0 {
			return errors.Wrapf(ErrInvalidSpec, "step hold time must be positive, got %f", s.StepHold)
		}
	case KindChirp:
		if s.InitFreq <= 0 {
			return errors.Wrapf(ErrInvalidSpec, "chirp initial frequency must be positive, got %f", s.InitFreq)
		}
		if s.SweepRate < 0 {
			return errors.Wrapf(ErrInvalidSpec, "chirp sweep rate must not be negative, got %f", s.SweepRate)
		}
	default:
		return errors.Wrapf(ErrInvalidSpec, "unknown test kind %q", s.Kind)
	}
	return nil
}

// Generator builds the waveform for this spec. The selection happens
// exactly once here; nothing downstream inspects the kind again.
func (s Spec) Generator() (waveform.Generator, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.Kind {
	case KindSine:
		return waveform.NewSine(s.Center, s.Amp, s.Freq), nil
	case KindStep:
		return waveform.NewStep(s.StepSize, s.StepHold, s.StepCount), nil
	case KindChirp:
		return waveform.NewChirp(s.Amp, s.InitFreq, s.SweepRate), nil
	}
	return nil, errors.Wrapf(ErrInvalidSpec, "unknown test kind %q", s.Kind)
}

// ActuatorConfig holds the gains and limits applied to an actuator
// before a run. Not on the sampling hot path.
type ActuatorConfig struct {
	Kp            float64 `yaml:"kp"`
	Kd            float64 `yaml:"kd"`
	Ki            float64 `yaml:"ki"`
	Acceleration  float64 `yaml:"acceleration"`
	MaxTorque     float64 `yaml:"max_torque"`
	TorqueEnabled bool    `yaml:"torque_enabled"`
}

// ActuatorState is one readback from a target.
type ActuatorState struct {
	Position  float64
	Velocity  float64
	Timestamp time.Time
}

// Client is the transport boundary to one control target. Calls may
// block or fail independently per target; the scheduler absorbs both.
type Client interface {
	SetCommand(ctx context.Context, actuatorID int, pos float64, vel *float64) error
	ReadState(ctx context.Context, actuatorID int) (ActuatorState, error)
	ConfigureActuator(ctx context.Context, actuatorID int, cfg ActuatorConfig) error
}

// Target binds a client to one actuator on one side of the comparison.
type Target struct {
	Name       string
	Client     Client
	ActuatorID int
	Config     ActuatorConfig
}

// Sample is one recorded tick: the command issued and the state read
// back, stamped with the actual elapsed time at readback. Immutable
// once appended to a series.
type Sample struct {
	T       float64 `json:"t"`
	CmdPos  float64 `json:"cmd_pos"`
	CmdVel  float64 `json:"cmd_vel"`
	MeasPos float64 `json:"meas_pos"`
	MeasVel float64 `json:"meas_vel"`
}

// Series is the append-only sample sequence for one target, ordered
// by T ascending by construction.
type Series struct {
	Target    string   `json:"target"`
	Samples   []Sample `json:"samples"`
	HasCmdVel bool     `json:"has_cmd_vel"`

	// Skipped counts ticks dropped on command/read failure.
	Skipped int `json:"skipped"`

	// Aborted is set when consecutive failures ended the run early,
	// or when the target never started; AbortReason records why.
	Aborted     bool   `json:"aborted,omitempty"`
	AbortReason string `json:"abort_reason,omitempty"`
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Samples)
}

// Span returns the first and last timestamps; ok is false for an
// empty series.
func (s *Series) Span() (first, last float64, ok bool) {
	if s.Len() == 0 {
		return 0, 0, false
	}
	return s.Samples[0].T, s.Samples[len(s.Samples)-1].T, true
}

// Result is the whole outcome of one run, assembled once both units
// have finished and handed off to the caller.
type Result struct {
	Spec      Spec          `json:"spec"`
	Sim       *Series       `json:"sim,omitempty"`
	Real      *Series       `json:"real,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// SeriesFor returns the series recorded for the given target label.
func (r *Result) SeriesFor(target string) *Series {
	switch target {
	case TargetSim:
		return r.Sim
	case TargetReal:
		return r.Real
	}
	return nil
}

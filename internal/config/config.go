package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/ktune/internal/harness"
)

// Defaults mirror the bench setup the tool is normally run against.
const (
	DefaultName       = "Zeroth01"
	DefaultSimAddr    = "127.0.0.1:8586"
	DefaultRealAddr   = "192.168.42.1:8586"
	DefaultActuatorID = 11
	DefaultTest       = "sine"

	DefaultFreq     = 1.0
	DefaultAmp      = 5.0
	DefaultDuration = 5.0

	DefaultStepSize  = 10.0
	DefaultStepHold  = 3.0
	DefaultStepCount = 2

	DefaultInitFreq  = 0.5
	DefaultSweepRate = 0.5

	DefaultSampleRate = 50.0
	DefaultLogPad     = 2.0

	DefaultKp           = 20.0
	DefaultKd           = 55.0
	DefaultKi           = 0.01
	DefaultSimKp        = 24.0
	DefaultSimKv        = 0.75
	DefaultAcceleration = 2000.0
	DefaultMaxTorque    = 100.0
)

type Config struct {
	Name       string `yaml:"name"`
	SimAddr    string `yaml:"sim_addr"`
	RealAddr   string `yaml:"real_addr"`
	ActuatorID int    `yaml:"actuator_id"`
	Test       string `yaml:"test"`

	Sine  SineConfig  `yaml:"sine"`
	Step  StepConfig  `yaml:"step"`
	Chirp ChirpConfig `yaml:"chirp"`

	Duration   float64 `yaml:"duration"`
	SampleRate float64 `yaml:"sample_rate"`
	LogPad     float64 `yaml:"log_pad"`

	Gains     GainsConfig     `yaml:"gains"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type SineConfig struct {
	Freq   float64 `yaml:"freq"`
	Amp    float64 `yaml:"amp"`
	Center float64 `yaml:"center"`
}

type StepConfig struct {
	Size  float64 `yaml:"size"`
	Hold  float64 `yaml:"hold"`
	Count int     `yaml:"count"`
}

type ChirpConfig struct {
	Amp       float64 `yaml:"amp"`
	InitFreq  float64 `yaml:"init_freq"`
	SweepRate float64 `yaml:"sweep_rate"`
}

type GainsConfig struct {
	Kp           float64 `yaml:"kp"`
	Kd           float64 `yaml:"kd"`
	Ki           float64 `yaml:"ki"`
	SimKp        float64 `yaml:"sim_kp"`
	SimKv        float64 `yaml:"sim_kv"`
	Acceleration float64 `yaml:"acceleration"`
	MaxTorque    float64 `yaml:"max_torque"`
	TorqueOff    bool    `yaml:"torque_off"`
}

type TelemetryConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:       DefaultName,
		SimAddr:    DefaultSimAddr,
		RealAddr:   DefaultRealAddr,
		ActuatorID: DefaultActuatorID,
		Test:       DefaultTest,
		Sine: SineConfig{
			Freq: DefaultFreq,
			Amp:  DefaultAmp,
		},
		Step: StepConfig{
			Size:  DefaultStepSize,
			Hold:  DefaultStepHold,
			Count: DefaultStepCount,
		},
		Chirp: ChirpConfig{
			Amp:       DefaultAmp,
			InitFreq:  DefaultInitFreq,
			SweepRate: DefaultSweepRate,
		},
		Duration:   DefaultDuration,
		SampleRate: DefaultSampleRate,
		LogPad:     DefaultLogPad,
		Gains: GainsConfig{
			Kp:           DefaultKp,
			Kd:           DefaultKd,
			Ki:           DefaultKi,
			SimKp:        DefaultSimKp,
			SimKv:        DefaultSimKv,
			Acceleration: DefaultAcceleration,
			MaxTorque:    DefaultMaxTorque,
		},
		Telemetry: TelemetryConfig{
			Topic: "ktune/samples",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Spec maps the configured test onto a harness spec. Validation is
// the harness's job; this is a plain translation.
func (c *Config) Spec() harness.Spec {
	spec := harness.Spec{
		Kind:       harness.Kind(c.Test),
		Duration:   c.Duration,
		SampleRate: c.SampleRate,
		LogPad:     c.LogPad,
	}
	switch spec.Kind {
	case harness.KindSine:
		spec.Freq = c.Sine.Freq
		spec.Amp = c.Sine.Amp
		spec.Center = c.Sine.Center
	case harness.KindStep:
		spec.StepSize = c.Step.Size
		spec.StepHold = c.Step.Hold
		spec.StepCount = c.Step.Count
		// A step run's length follows from its cycle layout: the
		// initial hold plus an up and a down hold per cycle.
		spec.Duration = c.Step.Hold * float64(2*c.Step.Count+1)
	case harness.KindChirp:
		spec.Amp = c.Chirp.Amp
		spec.InitFreq = c.Chirp.InitFreq
		spec.SweepRate = c.Chirp.SweepRate
	}
	return spec
}

// SimActuatorConfig returns the gain set applied to the simulator
// side. The simulator runs its own kp/kv pair and never an integral
// term.
func (c *Config) SimActuatorConfig() harness.ActuatorConfig {
	return harness.ActuatorConfig{
		Kp:            c.Gains.SimKp,
		Kd:            c.Gains.SimKv,
		Ki:            0,
		MaxTorque:     c.Gains.MaxTorque,
		TorqueEnabled: !c.Gains.TorqueOff,
	}
}

// RealActuatorConfig returns the gain set applied to the hardware side.
func (c *Config) RealActuatorConfig() harness.ActuatorConfig {
	return harness.ActuatorConfig{
		Kp:            c.Gains.Kp,
		Kd:            c.Gains.Kd,
		Ki:            c.Gains.Ki,
		Acceleration:  c.Gains.Acceleration,
		MaxTorque:     c.Gains.MaxTorque,
		TorqueEnabled: !c.Gains.TorqueOff,
	}
}

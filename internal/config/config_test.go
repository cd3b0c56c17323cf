package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/ktune/internal/harness"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Test != "sine" {
		t.Errorf("expected default test sine, got %s", cfg.Test)
	}
	if cfg.SampleRate <= 0 {
		t.Error("sample rate should be positive")
	}
	if cfg.Duration <= 0 {
		t.Error("duration should be positive")
	}
	if cfg.Gains.Kp != DefaultKp || cfg.Gains.Kd != DefaultKd {
		t.Error("unexpected default real gains")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ktune.yaml")
	data := []byte("test: step\nstep:\n  size: 15.0\n  hold: 0.5\n  count: 4\nsample_rate: 100\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Test != "step" {
		t.Errorf("expected test step, got %s", cfg.Test)
	}
	if cfg.Step.Size != 15.0 || cfg.Step.Count != 4 {
		t.Errorf("step overrides not applied: %+v", cfg.Step)
	}
	if cfg.SampleRate != 100 {
		t.Errorf("expected sample rate 100, got %f", cfg.SampleRate)
	}
	// Untouched fields keep their defaults.
	if cfg.Gains.Kp != DefaultKp {
		t.Errorf("expected default kp, got %f", cfg.Gains.Kp)
	}
	if cfg.ActuatorID != DefaultActuatorID {
		t.Errorf("expected default actuator id, got %d", cfg.ActuatorID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Sine.Freq = 2.5

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Sine.Freq != 2.5 {
		t.Errorf("expected freq 2.5 after round trip, got %f", loaded.Sine.Freq)
	}
}

func TestSpecMapping(t *testing.T) {
	tests := []struct {
		test  string
		check func(t *testing.T, spec harness.Spec)
	}{
		{"sine", func(t *testing.T, spec harness.Spec) {
			if spec.Kind != harness.KindSine {
				t.Fatalf("expected sine kind, got %s", spec.Kind)
			}
			if spec.Freq != DefaultFreq || spec.Amp != DefaultAmp {
				t.Error("sine parameters not mapped")
			}
			if spec.Duration != DefaultDuration {
				t.Error("sine duration not mapped")
			}
		}},
		{"step", func(t *testing.T, spec harness.Spec) {
			if spec.StepSize != DefaultStepSize || spec.StepCount != DefaultStepCount {
				t.Error("step parameters not mapped")
			}
			// Initial hold plus up/down per cycle.
			want := DefaultStepHold * float64(2*DefaultStepCount+1)
			if math.Abs(spec.Duration-want) > 1e-12 {
				t.Errorf("expected derived duration %f, got %f", want, spec.Duration)
			}
		}},
		{"chirp", func(t *testing.T, spec harness.Spec) {
			if spec.InitFreq != DefaultInitFreq || spec.SweepRate != DefaultSweepRate {
				t.Error("chirp parameters not mapped")
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.test, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Test = tt.test
			spec := cfg.Spec()
			if err := spec.Validate(); err != nil {
				t.Fatalf("mapped spec invalid: %v", err)
			}
			tt.check(t, spec)
		})
	}
}

func TestActuatorConfigs(t *testing.T) {
	cfg := DefaultConfig()

	sim := cfg.SimActuatorConfig()
	if sim.Kp != DefaultSimKp || sim.Kd != DefaultSimKv {
		t.Error("sim gains not mapped")
	}
	if sim.Ki != 0 {
		t.Error("sim side must not use an integral term")
	}

	real := cfg.RealActuatorConfig()
	if real.Kp != DefaultKp || real.Kd != DefaultKd || real.Ki != DefaultKi {
		t.Error("real gains not mapped")
	}
	if !real.TorqueEnabled {
		t.Error("torque should default to enabled")
	}

	cfg.Gains.TorqueOff = true
	if cfg.RealActuatorConfig().TorqueEnabled {
		t.Error("torque off flag not applied")
	}
}

func TestPresets(t *testing.T) {
	for _, name := range ListPresets() {
		cfg := GetPreset(name)
		if cfg == nil {
			t.Fatalf("listed preset %s not found", name)
		}
		spec := cfg.Spec()
		if err := spec.Validate(); err != nil {
			t.Errorf("preset %s produces an invalid spec: %v", name, err)
		}
		if cfg.ActuatorID != DefaultActuatorID {
			t.Errorf("preset %s should keep default actuator id", name)
		}
	}

	if GetPreset("no-such-preset") != nil {
		t.Error("unknown preset should return nil")
	}
}

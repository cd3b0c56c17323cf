package config

import "sort"

// Presets are ready-made test setups for common bench checks. A preset
// is applied on top of the defaults, so it only carries the fields it
// cares about.
var Presets = map[string]func(*Config){
	"sine-slow": func(c *Config) {
		c.Test = "sine"
		c.Sine = SineConfig{Freq: 0.25, Amp: 10.0}
		c.Duration = 20.0
	},
	"sine-fast": func(c *Config) {
		c.Test = "sine"
		c.Sine = SineConfig{Freq: 3.0, Amp: 3.0}
		c.Duration = 5.0
	},
	"step-small": func(c *Config) {
		c.Test = "step"
		c.Step = StepConfig{Size: 5.0, Hold: 2.0, Count: 3}
	},
	"step-large": func(c *Config) {
		c.Test = "step"
		c.Step = StepConfig{Size: 30.0, Hold: 4.0, Count: 2}
	},
	"chirp-sweep": func(c *Config) {
		c.Test = "chirp"
		c.Chirp = ChirpConfig{Amp: 5.0, InitFreq: 0.5, SweepRate: 1.0}
		c.Duration = 10.0
	},
	"chirp-gentle": func(c *Config) {
		c.Test = "chirp"
		c.Chirp = ChirpConfig{Amp: 2.0, InitFreq: 0.25, SweepRate: 0.25}
		c.Duration = 15.0
	},
}

// GetPreset returns the defaults with the named preset applied, or nil
// when no such preset exists.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

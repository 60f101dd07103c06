package config

import "sort"

// Presets are named batch tunings selectable with --preset. Each builds on
// DefaultBatch so unset fields keep their defaults.
var Presets = map[string]func() *Batch{
	"default": DefaultBatch,
	"quick": func() *Batch {
		cfg := DefaultBatch()
		cfg.Runs = 2
		cfg.Frames = 120
		cfg.World.SolverIterations = 100
		return cfg
	},
	"preview": func() *Batch {
		cfg := DefaultBatch()
		cfg.Runs = 1
		cfg.Frames = 250
		cfg.Render.ResolutionX = 512
		cfg.Render.ResolutionY = 512
		return cfg
	},
	"bouncy": func() *Batch {
		cfg := DefaultBatch()
		cfg.Body.Restitution = 0.6
		cfg.Body.Friction = 0.2
		return cfg
	},
	"settle": func() *Batch {
		cfg := DefaultBatch()
		cfg.Frames = 1200
		cfg.Body.LinearDamping = 0.1
		cfg.Body.AngularDamping = 0.1
		return cfg
	},
}

func GetPreset(name string) *Batch {
	fn, ok := Presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

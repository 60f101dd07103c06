// Package drivers maps engine names to constructors.
package drivers

import (
	"fmt"
	"io"
	"sort"

	"github.com/san-kum/dropsim/internal/engine"
	"github.com/san-kum/dropsim/internal/engine/blender"
	"github.com/san-kum/dropsim/internal/engine/dry"
	"github.com/san-kum/dropsim/internal/engine/pybullet"
)

// Options are shared by every factory; each driver reads what it needs.
type Options struct {
	// Binary is the host executable (blender or python). Empty means the
	// driver's default.
	Binary    string
	Dir       string
	Headless  bool
	Output    io.Writer
	Artifacts bool
}

type Registry struct {
	scenes    map[string]func(Options) (engine.Scene, error)
	realtimes map[string]func(Options) (engine.Realtime, error)
}

func NewRegistry() *Registry {
	r := &Registry{
		scenes:    make(map[string]func(Options) (engine.Scene, error)),
		realtimes: make(map[string]func(Options) (engine.Realtime, error)),
	}

	r.scenes["blender"] = func(o Options) (engine.Scene, error) {
		s, err := blender.Start(o.Binary, o.Dir, o.Output)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	r.scenes["dry"] = func(o Options) (engine.Scene, error) {
		opts := []dry.Option{}
		if o.Output != nil {
			opts = append(opts, dry.WithOutput(o.Output))
		}
		if o.Artifacts {
			opts = append(opts, dry.WithArtifacts())
		}
		return dry.NewScene(opts...), nil
	}

	r.realtimes["pybullet"] = func(o Options) (engine.Realtime, error) {
		s, err := pybullet.Start(o.Binary, o.Dir, o.Headless, o.Output)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	r.realtimes["dry"] = func(o Options) (engine.Realtime, error) {
		return dry.NewRealtime(), nil
	}

	return r
}

func (r *Registry) Scene(name string, o Options) (engine.Scene, error) {
	fn, ok := r.scenes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownEngine, name)
	}
	return fn(o)
}

func (r *Registry) Realtime(name string, o Options) (engine.Realtime, error) {
	fn, ok := r.realtimes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownEngine, name)
	}
	return fn(o)
}

func (r *Registry) ListScenes() []string {
	return sortedKeys(r.scenes)
}

func (r *Registry) ListRealtimes() []string {
	return sortedKeys(r.realtimes)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

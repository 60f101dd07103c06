package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPollInterval = 10 * time.Millisecond

// Scene describes the interactive demo: what to load and where.
type Scene struct {
	Gravity      [3]float64    `yaml:"gravity"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// PoseEvery samples body poses on every Nth poll for observers.
	PoseEvery int           `yaml:"pose_every"`
	Objects   []SceneObject `yaml:"objects"`
	// BodyOrder names the objects in the order their bodies are created.
	// Shapes are always created in Objects order. Empty means Objects order.
	BodyOrder []string `yaml:"body_order"`
}

type SceneObject struct {
	Name     string     `yaml:"name"`
	Mesh     string     `yaml:"mesh"`
	Scale    [3]float64 `yaml:"scale"`
	Mass     float64    `yaml:"mass"`
	Position [3]float64 `yaml:"position"`
	// Euler is roll, pitch, yaw in radians.
	Euler [3]float64 `yaml:"euler"`
}

func DefaultScene() *Scene {
	tilt := [3]float64{1.45, 2.56, 1.8}
	return &Scene{
		Gravity:      [3]float64{0, 0, DefaultGravity},
		PollInterval: DefaultPollInterval,
		PoseEvery:    10,
		Objects: []SceneObject{
			{Name: "floor", Mesh: "floor.obj", Scale: [3]float64{10, 10, 10}, Mass: 0, Position: [3]float64{0, 0, -10}},
			{Name: "part0", Mesh: "part_0.obj", Scale: [3]float64{1, 1, 1}, Mass: 1, Position: [3]float64{0, 0, 10}, Euler: tilt},
			{Name: "part1", Mesh: "part_1.obj", Scale: [3]float64{1, 1, 1}, Mass: 1, Position: [3]float64{0, 0, 20}, Euler: tilt},
			{Name: "duck", Mesh: "duck.obj", Scale: [3]float64{10, 10, 10}, Mass: 1, Position: [3]float64{3, 3, 10}},
		},
		BodyOrder: []string{"part0", "part1", "floor", "duck"},
	}
}

// LoadScene reads a YAML scene. Fields left out keep the defaults; a file
// that lists objects replaces the default object set entirely.
func LoadScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultScene()
	cfg.Objects = nil
	cfg.BodyOrder = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if len(cfg.Objects) == 0 {
		def := DefaultScene()
		cfg.Objects = def.Objects
		if len(cfg.BodyOrder) == 0 {
			cfg.BodyOrder = def.BodyOrder
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (s *Scene) Validate() error {
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", s.PollInterval)
	}
	seen := make(map[string]bool, len(s.Objects))
	for i, o := range s.Objects {
		if o.Name == "" {
			return fmt.Errorf("object %d has no name", i)
		}
		if seen[o.Name] {
			return fmt.Errorf("duplicate object name %q", o.Name)
		}
		seen[o.Name] = true
		if o.Mesh == "" {
			return fmt.Errorf("object %q has no mesh", o.Name)
		}
		if o.Mass < 0 {
			return fmt.Errorf("object %q has negative mass", o.Name)
		}
	}
	if len(s.BodyOrder) == 0 {
		return nil
	}
	if len(s.BodyOrder) != len(s.Objects) {
		return fmt.Errorf("body_order lists %d objects, scene has %d", len(s.BodyOrder), len(s.Objects))
	}
	listed := make(map[string]bool, len(s.BodyOrder))
	for _, name := range s.BodyOrder {
		if !seen[name] {
			return fmt.Errorf("body_order names unknown object %q", name)
		}
		if listed[name] {
			return fmt.Errorf("body_order lists %q twice", name)
		}
		listed[name] = true
	}
	return nil
}

// BodyIndices returns indices into Objects in body creation order.
// Call it on a validated scene.
func (s *Scene) BodyIndices() []int {
	idx := make([]int, len(s.Objects))
	if len(s.BodyOrder) == 0 {
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	pos := make(map[string]int, len(s.Objects))
	for i, o := range s.Objects {
		pos[o.Name] = i
	}
	for i, name := range s.BodyOrder {
		idx[i] = pos[name]
	}
	return idx
}

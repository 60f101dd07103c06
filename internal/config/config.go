package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRuns      = 10
	DefaultFrames    = 500
	DefaultSeed      = 3
	DefaultClearance = 10.0
	DefaultGravity   = -9.81
)

// Batch is the tuning of a batch drop simulation. Everything the driver
// hands to the host engine comes from here.
type Batch struct {
	Runs      int      `yaml:"runs"`
	Frames    int      `yaml:"frames"`
	Seed      int64    `yaml:"seed"`
	Clearance float64  `yaml:"clearance"`
	World     World    `yaml:"world"`
	Body      Body     `yaml:"body"`
	Floor     Floor    `yaml:"floor"`
	Material  Material `yaml:"material"`
	Render    Render   `yaml:"render"`
	Camera    Camera   `yaml:"camera"`
}

type World struct {
	SolverIterations int        `yaml:"solver_iterations"`
	StepsPerSecond   int        `yaml:"steps_per_second"`
	TimeScale        float64    `yaml:"time_scale"`
	SplitImpulse     bool       `yaml:"split_impulse"`
	Gravity          [3]float64 `yaml:"gravity"`
}

type Body struct {
	Shape          string  `yaml:"shape"`
	MeshSource     string  `yaml:"mesh_source"`
	Margin         float64 `yaml:"margin"`
	Friction       float64 `yaml:"friction"`
	Restitution    float64 `yaml:"restitution"`
	LinearDamping  float64 `yaml:"linear_damping"`
	AngularDamping float64 `yaml:"angular_damping"`
	Mass           float64 `yaml:"mass"`
}

type Floor struct {
	Object   string     `yaml:"object"`
	Location [3]float64 `yaml:"location"`
	Scale    [3]float64 `yaml:"scale"`
}

type Material struct {
	Name              string     `yaml:"name"`
	Shader            string     `yaml:"shader"`
	Diffuse           [3]float64 `yaml:"diffuse"`
	DiffuseIntensity  float64    `yaml:"diffuse_intensity"`
	Specular          [3]float64 `yaml:"specular"`
	SpecularIntensity float64    `yaml:"specular_intensity"`
	Alpha             float64    `yaml:"alpha"`
	Ambient           float64    `yaml:"ambient"`
}

type Render struct {
	ResolutionX int    `yaml:"resolution_x"`
	ResolutionY int    `yaml:"resolution_y"`
	Format      string `yaml:"format"`
	ColorMode   string `yaml:"color_mode"`
	Quality     int    `yaml:"quality"`
}

type Camera struct {
	FOV       float64 `yaml:"fov"`
	ClipStart float64 `yaml:"clip_start"`
	ClipEnd   float64 `yaml:"clip_end"`
	// Margin is added to half the assembly diagonal to get the orbit radius.
	Margin         float64 `yaml:"margin"`
	ShadowSoftSize float64 `yaml:"shadow_soft_size"`
}

func DefaultBatch() *Batch {
	return &Batch{
		Runs:      DefaultRuns,
		Frames:    DefaultFrames,
		Seed:      DefaultSeed,
		Clearance: DefaultClearance,
		World: World{
			SolverIterations: 1000,
			StepsPerSecond:   60,
			TimeScale:        1.0,
			SplitImpulse:     false,
			Gravity:          [3]float64{0, 0, DefaultGravity},
		},
		Body: Body{
			Shape:          "MESH",
			MeshSource:     "BASE",
			Margin:         0.05,
			Friction:       0.5,
			Restitution:    0.1,
			LinearDamping:  0,
			AngularDamping: 0,
			Mass:           1.0,
		},
		Floor: Floor{
			Object:   "Cube",
			Location: [3]float64{0, 0, -1},
			Scale:    [3]float64{1000, 1000, 1},
		},
		Material: Material{
			Name:              "default_material",
			Shader:            "LAMBERT",
			Diffuse:           [3]float64{0.5, 0.5, 0.5},
			DiffuseIntensity:  0.5,
			Specular:          [3]float64{1, 1, 1},
			SpecularIntensity: 0.1,
			Alpha:             1.0,
			Ambient:           0.2,
		},
		Render: Render{
			ResolutionX: 256,
			ResolutionY: 256,
			Format:      "AVI_JPEG",
			ColorMode:   "RGBA",
			Quality:     90,
		},
		Camera: Camera{
			FOV:            60,
			ClipStart:      0.1,
			ClipEnd:        10000,
			Margin:         10,
			ShadowSoftSize: 0.01,
		},
	}
}

// LoadBatch reads a YAML tuning file on top of DefaultBatch. The document is
// checked against the batch schema before it is decoded.
func LoadBatch(path string) (*Batch, error) {
	return LoadBatchOnto(path, DefaultBatch())
}

// LoadBatchOnto decodes a YAML tuning file over base, so fields the file
// leaves out keep base's values. base is modified and returned.
func LoadBatchOnto(path string, base *Batch) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateBatch(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, base); err != nil {
		return nil, err
	}
	return base, nil
}

func SaveBatch(path string, cfg *Batch) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

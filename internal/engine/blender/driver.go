// Package blender drives a background Blender process through the bridge.
// The embedded host script is written to a temp file and handed to
// `blender --python`; every Scene call becomes one request.
package blender

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dropsim/internal/bridge"
	"github.com/san-kum/dropsim/internal/engine"
	"github.com/san-kum/dropsim/internal/geom"
)

//go:embed host.py
var hostScript []byte

const DefaultBinary = "blender"

// commandFor builds the Blender invocation for a host script at script.
func commandFor(binary, script, dir string) bridge.Command {
	if binary == "" {
		binary = DefaultBinary
	}
	return bridge.Command{
		Path: binary,
		Args: []string{"--background", "--factory-startup", "--python", script, "--"},
		Dir:  dir,
	}
}

type Scene struct {
	client *bridge.Client
	script string
}

// Start launches Blender. Its console output goes to out until redirected.
func Start(binary, dir string, out io.Writer) (*Scene, error) {
	f, err := os.CreateTemp("", "dropsim-blender-*.py")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(hostScript); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, err
	}

	c, err := bridge.Start(commandFor(binary, f.Name(), dir), out)
	if err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	return &Scene{client: c, script: f.Name()}, nil
}

func (s *Scene) call(ctx context.Context, method string, params, result any) error {
	return hostErr(s.client.Call(ctx, method, params, result))
}

func hostErr(err error) error {
	var re *bridge.RemoteError
	if errors.As(err, &re) {
		return &engine.HostError{Op: re.Method, Message: re.Message}
	}
	if errors.Is(err, bridge.ErrClosed) {
		return engine.ErrClosed
	}
	return err
}

type objectParams struct {
	Object engine.Object `json:"object"`
}

func (s *Scene) Version(ctx context.Context) (string, error) {
	var v string
	err := s.call(ctx, "version", nil, &v)
	return v, err
}

func (s *Scene) ImportMesh(ctx context.Context, path string) (engine.Object, error) {
	var name string
	if err := s.call(ctx, "import_mesh", map[string]string{"path": path}, &name); err != nil {
		return "", err
	}
	return engine.Object(name), nil
}

func (s *Scene) LookupObject(ctx context.Context, name string) (engine.Object, error) {
	var got string
	err := s.call(ctx, "lookup_object", map[string]string{"name": name}, &got)
	var he *engine.HostError
	if errors.As(err, &he) {
		return "", fmt.Errorf("%w: %s", engine.ErrUnknownObject, name)
	}
	if err != nil {
		return "", err
	}
	return engine.Object(got), nil
}

type worldParams struct {
	SolverIterations int        `json:"solver_iterations"`
	StepsPerSecond   int        `json:"steps_per_second"`
	TimeScale        float64    `json:"time_scale"`
	SplitImpulse     bool       `json:"split_impulse"`
	Gravity          [3]float64 `json:"gravity"`
}

func (s *Scene) SetupWorld(ctx context.Context, w engine.World) error {
	return s.call(ctx, "setup_world", worldParams{
		SolverIterations: w.SolverIterations,
		StepsPerSecond:   w.StepsPerSecond,
		TimeScale:        w.TimeScale,
		SplitImpulse:     w.SplitImpulse,
		Gravity:          w.Gravity,
	}, nil)
}

type materialParams struct {
	Name              string     `json:"name"`
	Shader            string     `json:"shader"`
	Diffuse           [3]float64 `json:"diffuse"`
	DiffuseIntensity  float64    `json:"diffuse_intensity"`
	Specular          [3]float64 `json:"specular"`
	SpecularIntensity float64    `json:"specular_intensity"`
	Alpha             float64    `json:"alpha"`
	Ambient           float64    `json:"ambient"`
}

func (s *Scene) AddMaterial(ctx context.Context, obj engine.Object, m engine.Material) error {
	return s.call(ctx, "add_material", struct {
		Object   engine.Object  `json:"object"`
		Material materialParams `json:"material"`
	}{obj, materialParams{
		Name:              m.Name,
		Shader:            m.Shader,
		Diffuse:           m.Diffuse,
		DiffuseIntensity:  m.DiffuseIntensity,
		Specular:          m.Specular,
		SpecularIntensity: m.SpecularIntensity,
		Alpha:             m.Alpha,
		Ambient:           m.Ambient,
	}}, nil)
}

type bodyParams struct {
	Type           engine.BodyType `json:"type"`
	Shape          string          `json:"shape"`
	MeshSource     string          `json:"mesh_source"`
	Margin         float64         `json:"margin"`
	Friction       float64         `json:"friction"`
	Restitution    float64         `json:"restitution"`
	LinearDamping  float64         `json:"linear_damping"`
	AngularDamping float64         `json:"angular_damping"`
	Mass           float64         `json:"mass"`
}

func (s *Scene) AddRigidBody(ctx context.Context, obj engine.Object, rb engine.RigidBody) error {
	return s.call(ctx, "add_rigid_body", struct {
		Object engine.Object `json:"object"`
		Body   bodyParams    `json:"body"`
	}{obj, bodyParams(rb)}, nil)
}

func (s *Scene) SetPlacement(ctx context.Context, obj engine.Object, location, scale mgl64.Vec3) error {
	return s.call(ctx, "set_placement", struct {
		Object   engine.Object `json:"object"`
		Location [3]float64    `json:"location"`
		Scale    [3]float64    `json:"scale"`
	}{obj, location, scale}, nil)
}

func (s *Scene) Transform(ctx context.Context, obj engine.Object) (mgl64.Mat4, error) {
	var rows [4][4]float64
	if err := s.call(ctx, "transform", objectParams{obj}, &rows); err != nil {
		return mgl64.Mat4{}, err
	}
	return geom.MatrixFromRows(rows), nil
}

func (s *Scene) SetTransform(ctx context.Context, obj engine.Object, m mgl64.Mat4) error {
	return s.call(ctx, "set_transform", struct {
		Object engine.Object `json:"object"`
		Matrix [4][4]float64 `json:"matrix"`
	}{obj, geom.MatrixRows(m)}, nil)
}

func (s *Scene) LocalBounds(ctx context.Context, obj engine.Object) ([8]mgl64.Vec3, error) {
	var raw [8][3]float64
	if err := s.call(ctx, "local_bounds", objectParams{obj}, &raw); err != nil {
		return [8]mgl64.Vec3{}, err
	}
	var corners [8]mgl64.Vec3
	for i, c := range raw {
		corners[i] = c
	}
	return corners, nil
}

func (s *Scene) AddLight(ctx context.Context, l engine.Light) error {
	return s.call(ctx, "add_light", struct {
		Type           string     `json:"type"`
		Location       [3]float64 `json:"location"`
		ShadowSoftSize float64    `json:"shadow_soft_size"`
	}{l.Type, l.Location, l.ShadowSoftSize}, nil)
}

type renderParams struct {
	ResolutionX int    `json:"resolution_x"`
	ResolutionY int    `json:"resolution_y"`
	Format      string `json:"format"`
	ColorMode   string `json:"color_mode"`
	Quality     int    `json:"quality"`
	FrameStart  int    `json:"frame_start"`
	FrameEnd    int    `json:"frame_end"`
}

func (s *Scene) ConfigureRender(ctx context.Context, r engine.Render) error {
	return s.call(ctx, "configure_render", renderParams(r), nil)
}

type cameraParams struct {
	Location  [3]float64 `json:"location"`
	Rotation  [4]float64 `json:"rotation"`
	FOV       float64    `json:"fov"`
	ClipStart float64    `json:"clip_start"`
	ClipEnd   float64    `json:"clip_end"`
}

// quatWXYZ is the component order mathutils.Quaternion takes.
func quatWXYZ(q mgl64.Quat) [4]float64 {
	return [4]float64{q.W, q.V[0], q.V[1], q.V[2]}
}

func (s *Scene) ConfigureCamera(ctx context.Context, c engine.Camera) error {
	return s.call(ctx, "configure_camera", cameraParams{
		Location:  c.Location,
		Rotation:  quatWXYZ(c.Rotation),
		FOV:       c.FOV,
		ClipStart: c.ClipStart,
		ClipEnd:   c.ClipEnd,
	}, nil)
}

func (s *Scene) SetFrame(ctx context.Context, frame int) error {
	return s.call(ctx, "set_frame", map[string]int{"frame": frame}, nil)
}

func (s *Scene) Update(ctx context.Context) error {
	return s.call(ctx, "update", nil, nil)
}

func (s *Scene) RenderAnimation(ctx context.Context, path string) error {
	return s.call(ctx, "render_animation", map[string]string{"path": path}, nil)
}

func (s *Scene) SaveScene(ctx context.Context, path string) error {
	return s.call(ctx, "save_scene", map[string]string{"path": path}, nil)
}

// RedirectOutput implements engine.OutputRedirector.
func (s *Scene) RedirectOutput(w io.Writer) func() {
	return s.client.RedirectOutput(w)
}

func (s *Scene) Close() error {
	err := s.client.Close()
	os.Remove(s.script)
	return err
}

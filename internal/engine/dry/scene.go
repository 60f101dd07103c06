// Package dry is an in-process engine without physics. It keeps the scene
// graph the orchestration builds (objects, transforms, frame cursor) so a
// batch or demo can run headless, and it records every call for inspection.
package dry

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dropsim/internal/engine"
	"github.com/san-kum/dropsim/internal/geom"
)

const Version = "dry 1.0"

// DefaultCube is the primitive every new scene starts with, matching a fresh
// Blender file: a cube of half-size 1 at the origin.
const DefaultCube = "Cube"

type object struct {
	name     string
	corners  [8]mgl64.Vec3
	matrix   mgl64.Mat4
	material *engine.Material
	body     *engine.RigidBody
}

type Option func(*Scene)

// WithArtifacts makes RenderAnimation and SaveScene write placeholder files
// at the requested paths.
func WithArtifacts() Option {
	return func(s *Scene) { s.artifacts = true }
}

// WithOutput sets where the scene writes its per-frame chatter.
func WithOutput(w io.Writer) Option {
	return func(s *Scene) { s.out = w }
}

type Scene struct {
	mu        sync.Mutex
	objects   map[engine.Object]*object
	order     []engine.Object
	world     *engine.World
	lights    []engine.Light
	render    *engine.Render
	camera    *engine.Camera
	frame     int
	stepped   int
	updates   int
	renders   []string
	saves     []string
	artifacts bool
	out       io.Writer
	closed    bool
}

func NewScene(opts ...Option) *Scene {
	s := &Scene{
		objects: make(map[engine.Object]*object),
		out:     io.Discard,
		frame:   1,
	}
	for _, o := range opts {
		o(s)
	}
	cube := geom.Box{Min: mgl64.Vec3{-1, -1, -1}, Max: mgl64.Vec3{1, 1, 1}}
	s.add(&object{name: DefaultCube, corners: cube.Corners(), matrix: mgl64.Ident4()})
	return s
}

func (s *Scene) add(o *object) engine.Object {
	name := o.name
	for i := 1; ; i++ {
		if _, taken := s.objects[engine.Object(name)]; !taken {
			break
		}
		name = fmt.Sprintf("%s.%03d", o.name, i)
	}
	o.name = name
	id := engine.Object(name)
	s.objects[id] = o
	s.order = append(s.order, id)
	return id
}

func (s *Scene) get(obj engine.Object) (*object, error) {
	if s.closed {
		return nil, engine.ErrClosed
	}
	o, ok := s.objects[obj]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownObject, obj)
	}
	return o, nil
}

func (s *Scene) Version(ctx context.Context) (string, error) {
	return Version, nil
}

func (s *Scene) ImportMesh(ctx context.Context, path string) (engine.Object, error) {
	info, err := readOBJ(path)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", engine.ErrClosed
	}
	return s.add(&object{name: info.name, corners: info.bounds.Corners(), matrix: mgl64.Ident4()}), nil
}

func (s *Scene) LookupObject(ctx context.Context, name string) (engine.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.get(engine.Object(name))
	if err != nil {
		return "", err
	}
	return engine.Object(o.name), nil
}

func (s *Scene) SetupWorld(ctx context.Context, w engine.World) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.world = &w
	return nil
}

func (s *Scene) AddMaterial(ctx context.Context, obj engine.Object, m engine.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.get(obj)
	if err != nil {
		return err
	}
	o.material = &m
	return nil
}

func (s *Scene) AddRigidBody(ctx context.Context, obj engine.Object, rb engine.RigidBody) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.world == nil {
		return fmt.Errorf("%w: add_rigid_body: no rigid body world", engine.ErrHost)
	}
	o, err := s.get(obj)
	if err != nil {
		return err
	}
	o.body = &rb
	return nil
}

func (s *Scene) SetPlacement(ctx context.Context, obj engine.Object, location, scale mgl64.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.get(obj)
	if err != nil {
		return err
	}
	o.matrix = mgl64.Translate3D(location[0], location[1], location[2]).Mul4(mgl64.Scale3D(scale[0], scale[1], scale[2]))
	return nil
}

func (s *Scene) Transform(ctx context.Context, obj engine.Object) (mgl64.Mat4, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.get(obj)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	return o.matrix, nil
}

func (s *Scene) SetTransform(ctx context.Context, obj engine.Object, m mgl64.Mat4) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.get(obj)
	if err != nil {
		return err
	}
	o.matrix = m
	return nil
}

func (s *Scene) LocalBounds(ctx context.Context, obj engine.Object) ([8]mgl64.Vec3, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.get(obj)
	if err != nil {
		return [8]mgl64.Vec3{}, err
	}
	return o.corners, nil
}

func (s *Scene) AddLight(ctx context.Context, l engine.Light) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = append(s.lights, l)
	return nil
}

func (s *Scene) ConfigureRender(ctx context.Context, r engine.Render) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.render = &r
	return nil
}

func (s *Scene) ConfigureCamera(ctx context.Context, c engine.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = &c
	return nil
}

func (s *Scene) SetFrame(ctx context.Context, frame int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrClosed
	}
	s.frame = frame
	s.stepped++
	fmt.Fprintf(s.out, "Fra:%d\n", frame)
	return nil
}

func (s *Scene) Update(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	return nil
}

func (s *Scene) RenderAnimation(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.render == nil || s.camera == nil {
		return fmt.Errorf("%w: render: scene has no render settings or camera", engine.ErrHost)
	}
	s.renders = append(s.renders, path)
	fmt.Fprintf(s.out, "Append frame %d-%d to %s\n", s.render.FrameStart, s.render.FrameEnd, path)
	if s.artifacts {
		return os.WriteFile(path, nil, 0644)
	}
	return nil
}

func (s *Scene) SaveScene(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, path)
	if s.artifacts {
		return os.WriteFile(path, nil, 0644)
	}
	return nil
}

// RedirectOutput implements engine.OutputRedirector.
func (s *Scene) RedirectOutput(w io.Writer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.out
	s.out = w
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.out = prev
	}
}

func (s *Scene) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Inspection helpers for tests and dry-run reports.

func (s *Scene) Objects() []engine.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Object(nil), s.order...)
}

func (s *Scene) RigidBodyOf(obj engine.Object) (engine.RigidBody, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[obj]
	if !ok || o.body == nil {
		return engine.RigidBody{}, false
	}
	return *o.body, true
}

func (s *Scene) MaterialOf(obj engine.Object) (engine.Material, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[obj]
	if !ok || o.material == nil {
		return engine.Material{}, false
	}
	return *o.material, true
}

func (s *Scene) World() (engine.World, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.world == nil {
		return engine.World{}, false
	}
	return *s.world, true
}

func (s *Scene) Camera() (engine.Camera, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.camera == nil {
		return engine.Camera{}, false
	}
	return *s.camera, true
}

func (s *Scene) RenderSettings() (engine.Render, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.render == nil {
		return engine.Render{}, false
	}
	return *s.render, true
}

func (s *Scene) Lights() []engine.Light {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Light(nil), s.lights...)
}

func (s *Scene) Frame() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// FramesStepped counts SetFrame calls.
func (s *Scene) FramesStepped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepped
}

func (s *Scene) Renders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.renders...)
}

func (s *Scene) Saves() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saves...)
}

// Output returns the writer the scene currently prints to.
func (s *Scene) Output() io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

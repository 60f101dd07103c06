package engine

import (
	"context"
	"io"

	"github.com/go-gl/mathgl/mgl64"
)

// Object is a host-side handle for an object in a Scene. For Blender it is
// the object name.
type Object string

type BodyType string

const (
	Active  BodyType = "ACTIVE"
	Passive BodyType = "PASSIVE"
)

type World struct {
	SolverIterations int
	StepsPerSecond   int
	TimeScale        float64
	SplitImpulse     bool
	Gravity          mgl64.Vec3
}

type Material struct {
	Name              string
	Shader            string
	Diffuse           mgl64.Vec3
	DiffuseIntensity  float64
	Specular          mgl64.Vec3
	SpecularIntensity float64
	Alpha             float64
	Ambient           float64
}

// RigidBody describes the physics binding of one object. Shape and
// MeshSource use the host's vocabulary ("MESH", "BASE").
type RigidBody struct {
	Type           BodyType
	Shape          string
	MeshSource     string
	Margin         float64
	Friction       float64
	Restitution    float64
	LinearDamping  float64
	AngularDamping float64
	Mass           float64
}

type Light struct {
	Type           string
	Location       mgl64.Vec3
	ShadowSoftSize float64
}

type Render struct {
	ResolutionX int
	ResolutionY int
	Format      string
	ColorMode   string
	Quality     int
	FrameStart  int
	FrameEnd    int
}

// Camera places the scene camera. FOV is in degrees; Rotation maps the
// camera's local axes (looking down -Z, Y up) into world space.
type Camera struct {
	Location  mgl64.Vec3
	Rotation  mgl64.Quat
	FOV       float64
	ClipStart float64
	ClipEnd   float64
}

// Scene is a frame-stepped host scene with a rigid-body world.
type Scene interface {
	Version(ctx context.Context) (string, error)

	ImportMesh(ctx context.Context, path string) (Object, error)
	LookupObject(ctx context.Context, name string) (Object, error)

	SetupWorld(ctx context.Context, w World) error
	AddMaterial(ctx context.Context, obj Object, m Material) error
	AddRigidBody(ctx context.Context, obj Object, rb RigidBody) error

	SetPlacement(ctx context.Context, obj Object, location, scale mgl64.Vec3) error
	Transform(ctx context.Context, obj Object) (mgl64.Mat4, error)
	SetTransform(ctx context.Context, obj Object, m mgl64.Mat4) error
	// LocalBounds returns the eight corners of the object's bounding box in
	// object space.
	LocalBounds(ctx context.Context, obj Object) ([8]mgl64.Vec3, error)

	AddLight(ctx context.Context, l Light) error
	ConfigureRender(ctx context.Context, r Render) error
	ConfigureCamera(ctx context.Context, c Camera) error

	SetFrame(ctx context.Context, frame int) error
	Update(ctx context.Context) error
	RenderAnimation(ctx context.Context, path string) error
	SaveScene(ctx context.Context, path string) error

	Close() error
}

type ShapeID int

type BodyID int

type MultiBody struct {
	Mass        float64
	Shape       ShapeID
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

// Realtime is a physics session that advances on its own once real-time
// mode is enabled.
type Realtime interface {
	Version(ctx context.Context) (string, error)

	CreateCollisionShape(ctx context.Context, mesh string, scale mgl64.Vec3) (ShapeID, error)
	CreateMultiBody(ctx context.Context, mb MultiBody) (BodyID, error)
	SetGravity(ctx context.Context, g mgl64.Vec3) error
	SetRealTime(ctx context.Context, on bool) error

	// KeyboardEvents returns key code -> state flags pending since the last poll.
	KeyboardEvents(ctx context.Context) (map[int]int, error)
	BodyPose(ctx context.Context, id BodyID) (Pose, error)

	Close() error
}

// OutputRedirector is implemented by engines whose host writes its own
// console output. RedirectOutput sends that output to w until the returned
// restore func is called.
type OutputRedirector interface {
	RedirectOutput(w io.Writer) (restore func())
}

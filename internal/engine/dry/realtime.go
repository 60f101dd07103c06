package dry

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dropsim/internal/engine"
)

type shape struct {
	mesh  string
	scale mgl64.Vec3
}

// Realtime is a session that never moves anything: bodies stay where they
// were created. Keyboard events come from an optional script.
type Realtime struct {
	mu       sync.Mutex
	shapes   []shape
	bodies   []engine.MultiBody
	gravity  mgl64.Vec3
	realtime bool
	polls    int
	keys     func(poll int) map[int]int
	closed   bool
}

type RealtimeOption func(*Realtime)

// WithKeys scripts the keyboard: fn is called with the 1-based poll count.
func WithKeys(fn func(poll int) map[int]int) RealtimeOption {
	return func(r *Realtime) { r.keys = fn }
}

func NewRealtime(opts ...RealtimeOption) *Realtime {
	r := &Realtime{}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Realtime) Version(ctx context.Context) (string, error) {
	return Version, nil
}

func (r *Realtime) CreateCollisionShape(ctx context.Context, mesh string, scale mgl64.Vec3) (engine.ShapeID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, engine.ErrClosed
	}
	r.shapes = append(r.shapes, shape{mesh: mesh, scale: scale})
	return engine.ShapeID(len(r.shapes) - 1), nil
}

func (r *Realtime) CreateMultiBody(ctx context.Context, mb engine.MultiBody) (engine.BodyID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, engine.ErrClosed
	}
	if int(mb.Shape) < 0 || int(mb.Shape) >= len(r.shapes) {
		return 0, fmt.Errorf("%w: shape %d", engine.ErrUnknownBody, mb.Shape)
	}
	r.bodies = append(r.bodies, mb)
	return engine.BodyID(len(r.bodies) - 1), nil
}

func (r *Realtime) SetGravity(ctx context.Context, g mgl64.Vec3) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gravity = g
	return nil
}

func (r *Realtime) SetRealTime(ctx context.Context, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.realtime = on
	return nil
}

func (r *Realtime) KeyboardEvents(ctx context.Context) (map[int]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, engine.ErrClosed
	}
	r.polls++
	if r.keys == nil {
		return map[int]int{}, nil
	}
	return r.keys(r.polls), nil
}

func (r *Realtime) BodyPose(ctx context.Context, id engine.BodyID) (engine.Pose, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) < 0 || int(id) >= len(r.bodies) {
		return engine.Pose{}, fmt.Errorf("%w: body %d", engine.ErrUnknownBody, id)
	}
	b := r.bodies[id]
	return engine.Pose{Position: b.Position, Orientation: b.Orientation}, nil
}

func (r *Realtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Realtime) Shapes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.shapes))
	for i, s := range r.shapes {
		out[i] = s.mesh
	}
	return out
}

func (r *Realtime) ShapeScale(id engine.ShapeID) mgl64.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shapes[id].scale
}

func (r *Realtime) Bodies() []engine.MultiBody {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.MultiBody(nil), r.bodies...)
}

func (r *Realtime) Gravity() mgl64.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gravity
}

func (r *Realtime) IsRealTime() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.realtime
}

func (r *Realtime) Polls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls
}

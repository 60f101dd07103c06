// Package demo loads a handful of meshes into a real-time physics session
// and keeps the session alive, polling the keyboard, until it is cancelled.
package demo

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/san-kum/dropsim/internal/config"
	"github.com/san-kum/dropsim/internal/engine"
	"github.com/san-kum/dropsim/internal/geom"
)

// Poll is one iteration of the demo loop. Poses is nil except on sampled
// polls.
type Poll struct {
	Tick  int                    `json:"tick"`
	At    time.Time              `json:"at"`
	Keys  map[int]int            `json:"keys,omitempty"`
	Poses map[string]engine.Pose `json:"poses,omitempty"`
}

// Observer receives every poll. Observe must not block the loop for long.
type Observer interface {
	Observe(p Poll)
}

type ObserverFunc func(p Poll)

func (f ObserverFunc) Observe(p Poll) { f(p) }

type Options struct {
	Logger    *log.Logger
	Observers []Observer
}

type body struct {
	name string
	id   engine.BodyID
}

// Run builds the scene in rt and polls until ctx is done. Cancellation is
// the normal way out and is not reported as an error.
func Run(ctx context.Context, rt engine.Realtime, scene *config.Scene, opts Options) error {
	if scene == nil {
		scene = config.DefaultScene()
	}
	if err := scene.Validate(); err != nil {
		return err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	v, err := rt.Version(ctx)
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	logger.Printf("physics API version: %s", v)

	shapes := make([]engine.ShapeID, len(scene.Objects))
	for i, o := range scene.Objects {
		id, err := rt.CreateCollisionShape(ctx, o.Mesh, o.Scale)
		if err != nil {
			return fmt.Errorf("shape %s: %w", o.Name, err)
		}
		shapes[i] = id
	}

	bodies := make([]body, 0, len(scene.Objects))
	for _, i := range scene.BodyIndices() {
		o := scene.Objects[i]
		id, err := rt.CreateMultiBody(ctx, engine.MultiBody{
			Mass:        o.Mass,
			Shape:       shapes[i],
			Position:    o.Position,
			Orientation: geom.EulerToQuat(o.Euler),
		})
		if err != nil {
			return fmt.Errorf("body %s: %w", o.Name, err)
		}
		bodies = append(bodies, body{name: o.Name, id: id})
	}
	logger.Printf("loaded %d bodies", len(bodies))

	if err := rt.SetGravity(ctx, scene.Gravity); err != nil {
		return fmt.Errorf("gravity: %w", err)
	}
	if err := rt.SetRealTime(ctx, true); err != nil {
		return fmt.Errorf("real time: %w", err)
	}

	return loop(ctx, rt, scene, bodies, opts.Observers)
}

func loop(ctx context.Context, rt engine.Realtime, scene *config.Scene, bodies []body, observers []Observer) error {
	ticker := time.NewTicker(scene.PollInterval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		keys, err := rt.KeyboardEvents(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("keyboard: %w", err)
		}

		if len(observers) > 0 {
			p := Poll{Tick: tick, At: time.Now(), Keys: keys}
			if scene.PoseEvery > 0 && tick%scene.PoseEvery == 0 {
				p.Poses = make(map[string]engine.Pose, len(bodies))
				for _, b := range bodies {
					pose, err := rt.BodyPose(ctx, b.id)
					if err != nil {
						if ctx.Err() != nil {
							return nil
						}
						return fmt.Errorf("pose %s: %w", b.name, err)
					}
					p.Poses[b.name] = pose
				}
			}
			for _, o := range observers {
				o.Observe(p)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

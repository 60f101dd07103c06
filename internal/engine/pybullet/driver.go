// Package pybullet runs a PyBullet session in a python3 child process.
package pybullet

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dropsim/internal/bridge"
	"github.com/san-kum/dropsim/internal/engine"
)

//go:embed host.py
var hostScript []byte

const DefaultPython = "python3"

func commandFor(python, script, dir string, headless bool) bridge.Command {
	if python == "" {
		python = DefaultPython
	}
	args := []string{"-u", script}
	if headless {
		args = append(args, "--headless")
	}
	return bridge.Command{Path: python, Args: args, Dir: dir}
}

type Session struct {
	client *bridge.Client
	script string
}

// Start launches python with the host script. dir is the working directory
// relative mesh paths resolve against. A headless session uses pybullet's
// DIRECT mode instead of opening a window.
func Start(python, dir string, headless bool, out io.Writer) (*Session, error) {
	f, err := os.CreateTemp("", "dropsim-pybullet-*.py")
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

	c, err := bridge.Start(commandFor(python, f.Name(), dir, headless), out)
	if err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	return &Session{client: c, script: f.Name()}, nil
}

func (s *Session) call(ctx context.Context, method string, params, result any) error {
	err := s.client.Call(ctx, method, params, result)
	var re *bridge.RemoteError
	if errors.As(err, &re) {
		return &engine.HostError{Op: re.Method, Message: re.Message}
	}
	if errors.Is(err, bridge.ErrClosed) {
		return engine.ErrClosed
	}
	return err
}

func (s *Session) Version(ctx context.Context) (string, error) {
	var v string
	err := s.call(ctx, "version", nil, &v)
	return v, err
}

func (s *Session) CreateCollisionShape(ctx context.Context, mesh string, scale mgl64.Vec3) (engine.ShapeID, error) {
	var id int
	err := s.call(ctx, "create_collision_shape", struct {
		Mesh  string     `json:"mesh"`
		Scale [3]float64 `json:"scale"`
	}{mesh, scale}, &id)
	return engine.ShapeID(id), err
}

type multiBodyParams struct {
	Mass        float64    `json:"mass"`
	Shape       int        `json:"shape"`
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"`
}

// quatXYZW is pybullet's quaternion component order.
func quatXYZW(q mgl64.Quat) [4]float64 {
	return [4]float64{q.V[0], q.V[1], q.V[2], q.W}
}

func quatFromXYZW(v [4]float64) mgl64.Quat {
	return mgl64.Quat{W: v[3], V: mgl64.Vec3{v[0], v[1], v[2]}}
}

func (s *Session) CreateMultiBody(ctx context.Context, mb engine.MultiBody) (engine.BodyID, error) {
	var id int
	err := s.call(ctx, "create_multi_body", multiBodyParams{
		Mass:        mb.Mass,
		Shape:       int(mb.Shape),
		Position:    mb.Position,
		Orientation: quatXYZW(mb.Orientation),
	}, &id)
	return engine.BodyID(id), err
}

func (s *Session) SetGravity(ctx context.Context, g mgl64.Vec3) error {
	return s.call(ctx, "set_gravity", map[string][3]float64{"gravity": g}, nil)
}

func (s *Session) SetRealTime(ctx context.Context, on bool) error {
	return s.call(ctx, "set_real_time", map[string]bool{"on": on}, nil)
}

// decodeKeys converts the host's string-keyed event map back to key codes.
func decodeKeys(raw map[string]int) (map[int]int, error) {
	keys := make(map[int]int, len(raw))
	for k, v := range raw {
		code, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("pybullet: bad key code %q", k)
		}
		keys[code] = v
	}
	return keys, nil
}

func (s *Session) KeyboardEvents(ctx context.Context) (map[int]int, error) {
	var raw map[string]int
	if err := s.call(ctx, "keyboard_events", nil, &raw); err != nil {
		return nil, err
	}
	return decodeKeys(raw)
}

func (s *Session) BodyPose(ctx context.Context, id engine.BodyID) (engine.Pose, error) {
	var raw struct {
		Position    [3]float64 `json:"position"`
		Orientation [4]float64 `json:"orientation"`
	}
	if err := s.call(ctx, "body_pose", map[string]int{"body": int(id)}, &raw); err != nil {
		return engine.Pose{}, err
	}
	return engine.Pose{Position: raw.Position, Orientation: quatFromXYZW(raw.Orientation)}, nil
}

// RedirectOutput implements engine.OutputRedirector.
func (s *Session) RedirectOutput(w io.Writer) func() {
	return s.client.RedirectOutput(w)
}

func (s *Session) Close() error {
	err := s.client.Close()
	os.Remove(s.script)
	return err
}

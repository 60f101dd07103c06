package blender

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dropsim/internal/bridge"
	"github.com/san-kum/dropsim/internal/engine"
)

func TestCommandFor(t *testing.T) {
	tests := []struct {
		name   string
		binary string
		want   string
	}{
		{"default binary", "", DefaultBinary},
		{"explicit binary", "/opt/blender/blender", "/opt/blender/blender"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := commandFor(tt.binary, "/tmp/host.py", "/work")
			if cmd.Path != tt.want {
				t.Errorf("expected path %s, got %s", tt.want, cmd.Path)
			}
			if cmd.Dir != "/work" {
				t.Errorf("expected dir /work, got %s", cmd.Dir)
			}
			args := strings.Join(cmd.Args, " ")
			if args != "--background --factory-startup --python /tmp/host.py --" {
				t.Errorf("unexpected args %q", args)
			}
		})
	}
}

func TestHostErr(t *testing.T) {
	err := hostErr(&bridge.RemoteError{Method: "add_rigid_body", Message: "no rigid body world"})
	if !errors.Is(err, engine.ErrHost) {
		t.Fatalf("expected ErrHost, got %v", err)
	}
	var he *engine.HostError
	if !errors.As(err, &he) || he.Op != "add_rigid_body" {
		t.Errorf("unexpected host error %+v", he)
	}

	if err := hostErr(bridge.ErrClosed); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if hostErr(nil) != nil {
		t.Error("nil should stay nil")
	}
	wrapped := fmt.Errorf("%w: broken pipe", bridge.ErrExited)
	if err := hostErr(wrapped); !errors.Is(err, bridge.ErrExited) {
		t.Errorf("exit should pass through, got %v", err)
	}
}

func TestCameraParamsEncoding(t *testing.T) {
	q := mgl64.QuatRotate(0.5, mgl64.Vec3{0, 0, 1})
	p := cameraParams{Location: mgl64.Vec3{0, -12, 12}, Rotation: quatWXYZ(q), FOV: 60}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	rot := got["rotation"].([]any)
	if rot[0].(float64) != q.W || rot[3].(float64) != q.V[2] {
		t.Errorf("rotation not in w,x,y,z order: %v", rot)
	}
	if got["fov"].(float64) != 60 {
		t.Errorf("unexpected fov %v", got["fov"])
	}
}

func TestBodyParamsEncoding(t *testing.T) {
	rb := engine.RigidBody{Type: engine.Passive, Shape: "MESH", MeshSource: "BASE", Margin: 0.05, Mass: 1}
	data, err := json.Marshal(bodyParams(rb))
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"type":"PASSIVE"`, `"mesh_source":"BASE"`, `"margin":0.05`} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %s in %s", want, s)
		}
	}
}

func TestHostScriptHandlers(t *testing.T) {
	script := string(hostScript)
	for _, method := range []string{
		"import_mesh", "lookup_object", "setup_world", "add_material", "add_rigid_body",
		"set_placement", "transform", "set_transform", "local_bounds", "add_light",
		"configure_render", "configure_camera", "set_frame", "update",
		"render_animation", "save_scene", bridge.ShutdownMethod,
	} {
		if !strings.Contains(script, `"`+method+`"`) {
			t.Errorf("host script does not handle %s", method)
		}
	}
}

func TestHostScriptSetFrameIsQuiet(t *testing.T) {
	script := string(hostScript)
	start := strings.Index(script, "def set_frame(")
	if start < 0 {
		t.Fatal("set_frame not found")
	}
	body := script[start:]
	if end := strings.Index(body[1:], "\ndef "); end >= 0 {
		body = body[:end+1]
	}
	if strings.Contains(body, "print(") {
		t.Errorf("set_frame should not print progress:\n%s", body)
	}
}

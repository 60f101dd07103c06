// Package geom holds the placement math the drivers do on the Go side:
// bounding-box unions, random re-orientation, lift offsets and camera aim.
package geom

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// Box is an axis-aligned bounding box. The zero value is not empty; use
// EmptyBox as the identity for Union.
type Box struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{
		Min: mgl64.Vec3{inf, inf, inf},
		Max: mgl64.Vec3{-inf, -inf, -inf},
	}
}

func (b Box) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

func (b Box) Extend(p mgl64.Vec3) Box {
	for d := 0; d < 3; d++ {
		if p[d] < b.Min[d] {
			b.Min[d] = p[d]
		}
		if p[d] > b.Max[d] {
			b.Max[d] = p[d]
		}
	}
	return b
}

func (b Box) Union(o Box) Box {
	if o.IsEmpty() {
		return b
	}
	return b.Extend(o.Min).Extend(o.Max)
}

func (b Box) Size() mgl64.Vec3 {
	return b.Max.Sub(b.Min)
}

func (b Box) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b Box) Diagonal() float64 {
	return b.Size().Len()
}

func (b Box) Translate(v mgl64.Vec3) Box {
	return Box{Min: b.Min.Add(v), Max: b.Max.Add(v)}
}

// Corners returns the eight corners of b.
func (b Box) Corners() [8]mgl64.Vec3 {
	var c [8]mgl64.Vec3
	for i := range c {
		for d := 0; d < 3; d++ {
			if i&(1<<d) == 0 {
				c[i][d] = b.Min[d]
			} else {
				c[i][d] = b.Max[d]
			}
		}
	}
	return c
}

// WorldBounds transforms object-space corners by m and returns their
// enclosing box.
func WorldBounds(m mgl64.Mat4, corners [8]mgl64.Vec3) Box {
	b := EmptyBox()
	for _, c := range corners {
		b = b.Extend(mgl64.TransformCoordinate(c, m))
	}
	return b
}

const axisEpsilon = 1e-9

// RandomRotation draws an angle in [0, 2π) and a unit axis built from three
// uniform samples in [-1, 1]. The draw order is angle, x, y, z. Axis draws
// shorter than axisEpsilon are discarded and drawn again.
func RandomRotation(rng *rand.Rand) (float64, mgl64.Vec3) {
	angle := rng.Float64() * math.Pi * 2.0
	for {
		axis := mgl64.Vec3{
			(rng.Float64() - 0.5) * 2.0,
			(rng.Float64() - 0.5) * 2.0,
			(rng.Float64() - 0.5) * 2.0,
		}
		if l := axis.Len(); l > axisEpsilon {
			return angle, axis.Mul(1 / l)
		}
	}
}

// Rotation is the homogeneous rotation by angle about a unit axis through
// the origin.
func Rotation(angle float64, axis mgl64.Vec3) mgl64.Mat4 {
	return mgl64.HomogRotate3D(angle, axis)
}

// LiftOffset is the upward translation that puts the lowest point of b at
// least clearance above z=0.
func LiftOffset(b Box, clearance float64) float64 {
	return clearance + math.Max(0, -b.Min.Z())
}

// LookAt returns the rotation that points a camera's -Z axis from eye to
// target while keeping its Y axis as close to world +Z as possible.
func LookAt(eye, target mgl64.Vec3) mgl64.Quat {
	back := eye.Sub(target).Normalize()
	up := mgl64.Vec3{0, 0, 1}
	right := up.Cross(back)
	if right.Len() < axisEpsilon {
		// looking straight up or down
		right = mgl64.Vec3{1, 0, 0}
	}
	right = right.Normalize()
	camUp := back.Cross(right)
	return mgl64.Mat4ToQuat(mgl64.Mat3FromCols(right, camUp, back).Mat4()).Normalize()
}

// EulerToQuat converts roll/pitch/yaw (rotations about fixed X, Y, Z in that
// order) to a quaternion, matching pybullet's getQuaternionFromEuler.
func EulerToQuat(e mgl64.Vec3) mgl64.Quat {
	qx := mgl64.QuatRotate(e[0], mgl64.Vec3{1, 0, 0})
	qy := mgl64.QuatRotate(e[1], mgl64.Vec3{0, 1, 0})
	qz := mgl64.QuatRotate(e[2], mgl64.Vec3{0, 0, 1})
	return qz.Mul(qy).Mul(qx)
}

// MatrixRows returns m row by row, the layout host APIs usually expect.
func MatrixRows(m mgl64.Mat4) [4][4]float64 {
	var rows [4][4]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			rows[r][c] = m.At(r, c)
		}
	}
	return rows
}

func MatrixFromRows(rows [4][4]float64) mgl64.Mat4 {
	var m mgl64.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m.Set(r, c, rows[r][c])
		}
	}
	return m
}

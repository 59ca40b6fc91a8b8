package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// InputState is the per-frame snapshot of the controls the camera reacts
// to. The window layer fills it; headless runs pass a zero value.
type InputState struct {
	Forward, Back bool
	Left, Right   bool
	Boost         bool

	// Mouse movement in pixels since the last frame, applied only while
	// Rotate is held.
	MouseDX, MouseDY float32
	Rotate           bool
}

// Camera is a left-handed first person camera. Right, Up and Look stay
// orthonormal; the view matrix is rebuilt lazily after a change.
type Camera struct {
	// HOT DATA - read every frame for the pass constants
	Position mgl32.Vec3
	Right    mgl32.Vec3
	Up       mgl32.Vec3
	Look     mgl32.Vec3
	view     mgl32.Mat4
	proj     mgl32.Mat4
	dirty    bool

	// COLD DATA - lens and control settings
	FovY        float32 // radians
	Aspect      float32
	Near, Far   float32
	Speed       float32 // units per second
	Sensitivity float32 // degrees per pixel
	BoostFactor float32
}

func NewCamera(position, target mgl32.Vec3, fovY, aspect, near, far float32) *Camera {
	c := &Camera{
		Speed:       60,
		Sensitivity: 0.25,
		BoostFactor: 2.5,
	}
	c.SetLens(fovY, aspect, near, far)
	c.LookAt(position, target, WorldUp)
	return c
}

func (c *Camera) SetLens(fovY, aspect, near, far float32) {
	c.FovY, c.Aspect, c.Near, c.Far = fovY, aspect, near, far
	c.proj = PerspectiveFovLH(fovY, aspect, near, far)
}

// SetAspect keeps the lens but refits it to a new back buffer shape.
func (c *Camera) SetAspect(aspect float32) {
	c.SetLens(c.FovY, aspect, c.Near, c.Far)
}

func (c *Camera) LookAt(position, target, up mgl32.Vec3) {
	look := safeNormalize(target.Sub(position), mgl32.Vec3{0, 0, 1})
	if nearlyZero(up.Cross(look)) {
		up = fallbackUp
	}
	right := up.Cross(look).Normalize()

	c.Position = position
	c.Look = look
	c.Right = right
	c.Up = look.Cross(right)
	c.dirty = true
}

func (c *Camera) Walk(d float32) {
	c.Position = c.Position.Add(c.Look.Mul(d))
	c.dirty = true
}

func (c *Camera) Strafe(d float32) {
	c.Position = c.Position.Add(c.Right.Mul(d))
	c.dirty = true
}

// Pitch rotates Up and Look about the camera's right axis.
func (c *Camera) Pitch(angle float32) {
	r := mgl32.HomogRotate3D(angle, c.Right)
	c.Up = TransformNormal(r, c.Up)
	c.Look = TransformNormal(r, c.Look)
	c.dirty = true
}

// RotateY turns the camera about the world y axis.
func (c *Camera) RotateY(angle float32) {
	r := mgl32.HomogRotate3DY(angle)
	c.Right = TransformNormal(r, c.Right)
	c.Up = TransformNormal(r, c.Up)
	c.Look = TransformNormal(r, c.Look)
	c.dirty = true
}

// ApplyInput moves and turns the camera for one frame and reports whether
// anything changed.
func (c *Camera) ApplyInput(in InputState, dt float32) bool {
	step := c.Speed * dt
	if in.Boost {
		step *= c.BoostFactor
	}
	moved := false
	if in.Forward {
		c.Walk(step)
		moved = true
	}
	if in.Back {
		c.Walk(-step)
		moved = true
	}
	if in.Left {
		c.Strafe(-step)
		moved = true
	}
	if in.Right {
		c.Strafe(step)
		moved = true
	}
	if in.Rotate && (in.MouseDX != 0 || in.MouseDY != 0) {
		c.Pitch(mgl32.DegToRad(c.Sensitivity * in.MouseDY))
		c.RotateY(mgl32.DegToRad(c.Sensitivity * in.MouseDX))
		moved = true
	}
	return moved
}

// UpdateViewMatrix re-orthonormalizes the basis, which drifts under
// repeated rotation, and rebuilds the view matrix.
func (c *Camera) UpdateViewMatrix() {
	if !c.dirty {
		return
	}
	look := c.Look.Normalize()
	up := look.Cross(c.Right).Normalize()
	right := up.Cross(look)
	c.Look, c.Up, c.Right = look, up, right

	p := c.Position
	c.view = mgl32.Mat4{
		right[0], up[0], look[0], 0,
		right[1], up[1], look[1], 0,
		right[2], up[2], look[2], 0,
		-p.Dot(right), -p.Dot(up), -p.Dot(look), 1,
	}
	c.dirty = false
}

func (c *Camera) View() mgl32.Mat4 {
	c.UpdateViewMatrix()
	return c.view
}

func (c *Camera) Proj() mgl32.Mat4 { return c.proj }

func (c *Camera) ViewProj() mgl32.Mat4 {
	return c.proj.Mul4(c.View())
}

type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

func (p *Plane) DistanceToPoint(point mgl32.Vec3) float32 {
	return p.Normal.Dot(point) + p.Distance
}

type Frustum struct {
	Planes [6]Plane
}

// FrustumFromMatrix extracts the world space planes of a view-projection
// with [0,1] clip depth. Normals point inward.
func FrustumFromMatrix(vp mgl32.Mat4) Frustum {
	row := func(i int) mgl32.Vec4 {
		return mgl32.Vec4{vp[i], vp[4+i], vp[8+i], vp[12+i]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)
	raw := [6]mgl32.Vec4{
		r3.Add(r0), // left
		r3.Sub(r0), // right
		r3.Add(r1), // bottom
		r3.Sub(r1), // top
		r2,         // near
		r3.Sub(r2), // far
	}

	var f Frustum
	for i, p := range raw {
		n := p.Vec3()
		l := n.Len()
		if l == 0 {
			continue
		}
		f.Planes[i] = Plane{Normal: n.Mul(1 / l), Distance: p[3] / l}
	}
	return f
}

func (c *Camera) Frustum() Frustum {
	return FrustumFromMatrix(c.ViewProj())
}

func (f *Frustum) IntersectsSphere(center mgl32.Vec3, radius float32) bool {
	for i := range f.Planes {
		if f.Planes[i].DistanceToPoint(center) < -radius {
			return false
		}
	}
	return true
}

// worldSphere moves a local bounding sphere by a world matrix, growing the
// radius by the largest axis scale.
func worldSphere(b BoundingSphere, world mgl32.Mat4) BoundingSphere {
	scale := float32(0)
	for col := 0; col < 3; col++ {
		s := world.Col(col).Vec3().Len()
		scale = float32(math.Max(float64(scale), float64(s)))
	}
	return BoundingSphere{Center: TransformCoord(world, b.Center), Radius: b.Radius * scale}
}

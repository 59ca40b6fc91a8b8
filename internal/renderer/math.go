package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// The renderer works in a left-handed world (x right, y up, z forward)
// with clip-space depth in [0,1] and texture rows top-down. mgl32 matrices
// are column-major and multiply column vectors, so a transform chain
// applied as v*A*B in row-vector notation is written B.Mul4(A).

const epsilon = 1e-6

var (
	WorldUp       = mgl32.Vec3{0, 1, 0}
	fallbackUp    = mgl32.Vec3{0, 0, 1}
	fallbackRight = mgl32.Vec3{1, 0, 0}
)

// LookAtLH builds a left-handed view matrix looking from eye at target.
func LookAtLH(eye, target, up mgl32.Vec3) mgl32.Mat4 {
	z := target.Sub(eye).Normalize()
	x := up.Cross(z).Normalize()
	y := z.Cross(x)

	return mgl32.Mat4{
		x[0], y[0], z[0], 0,
		x[1], y[1], z[1], 0,
		x[2], y[2], z[2], 0,
		-x.Dot(eye), -y.Dot(eye), -z.Dot(eye), 1,
	}
}

// OrthoOffCenterLH maps the box [l,r]x[b,t]x[n,f] to x,y in [-1,1] and
// depth in [0,1].
func OrthoOffCenterLH(l, r, b, t, n, f float32) mgl32.Mat4 {
	return mgl32.Mat4{
		2 / (r - l), 0, 0, 0,
		0, 2 / (t - b), 0, 0,
		0, 0, 1 / (f - n), 0,
		-(r + l) / (r - l), -(t + b) / (t - b), -n / (f - n), 1,
	}
}

// PerspectiveFovLH is a left-handed perspective projection with depth in
// [0,1]. fovY is in radians.
func PerspectiveFovLH(fovY, aspect, near, far float32) mgl32.Mat4 {
	yScale := float32(1 / math.Tan(float64(fovY)/2))
	xScale := yScale / aspect
	q := far / (far - near)

	return mgl32.Mat4{
		xScale, 0, 0, 0,
		0, yScale, 0, 0,
		0, 0, q, 1,
		0, 0, -near * q, 0,
	}
}

// TextureSpaceRemap maps clip-space x,y in [-1,1] to texture u,v in [0,1]
// with v flipped, leaving depth untouched.
func TextureSpaceRemap() mgl32.Mat4 {
	return mgl32.Mat4{
		0.5, 0, 0, 0,
		0, -0.5, 0, 0,
		0, 0, 1, 0,
		0.5, 0.5, 0, 1,
	}
}

// TransformCoord applies m to a point and divides by w.
func TransformCoord(m mgl32.Mat4, p mgl32.Vec3) mgl32.Vec3 {
	v := m.Mul4x1(p.Vec4(1))
	if v[3] != 0 && v[3] != 1 {
		return mgl32.Vec3{v[0] / v[3], v[1] / v[3], v[2] / v[3]}
	}
	return v.Vec3()
}

// TransformNormal applies the rotational part of m to a direction.
func TransformNormal(m mgl32.Mat4, d mgl32.Vec3) mgl32.Vec3 {
	return m.Mul4x1(d.Vec4(0)).Vec3()
}

func nearlyZero(v mgl32.Vec3) bool {
	return v.Dot(v) < epsilon*epsilon
}

// safeNormalize returns fallback for zero-length vectors instead of NaN.
func safeNormalize(v, fallback mgl32.Vec3) mgl32.Vec3 {
	if nearlyZero(v) {
		return fallback
	}
	return v.Normalize()
}

package renderer

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type BoundingSphere struct {
	Center mgl32.Vec3
	Radius float32
}

// SceneBounds returns a sphere enclosing a width x depth footprint
// centered at the origin, grown by margin.
func SceneBounds(width, depth, margin float32) BoundingSphere {
	diag := float32(math.Sqrt(float64(width*width + depth*depth)))
	return BoundingSphere{Radius: diag/2 + margin}
}

// BoundsOf fits a sphere around the AABB of the vertices.
func BoundsOf(vertices []Vertex) BoundingSphere {
	if len(vertices) == 0 {
		return BoundingSphere{}
	}
	lo, hi := vertices[0].Pos, vertices[0].Pos
	for _, v := range vertices[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = float32(math.Min(float64(lo[k]), float64(v.Pos[k])))
			hi[k] = float32(math.Max(float64(hi[k]), float64(v.Pos[k])))
		}
	}
	center := lo.Add(hi).Mul(0.5)
	return BoundingSphere{Center: center, Radius: hi.Sub(center).Len()}
}

// LightBox is the light-space orthographic volume.
type LightBox struct {
	Left, Right float32
	Bottom, Top float32
	Near, Far   float32
}

type LightMatrices struct {
	View            mgl32.Mat4
	Proj            mgl32.Mat4
	ShadowTransform mgl32.Mat4
	LightPos        mgl32.Vec3
	NearZ, FarZ     float32
	Box             LightBox
}

// ComputeLightMatrices fits an orthographic light frustum tightly around
// the bounding sphere and derives the world to shadow-map-texture
// transform.
//
// When the light is (anti)parallel to world up the look-at basis is
// undefined, so +z is used as the up vector instead.
func ComputeLightMatrices(lightDir mgl32.Vec3, bounds BoundingSphere) LightMatrices {
	dir := safeNormalize(lightDir, mgl32.Vec3{0, -1, 0})
	r := bounds.Radius

	lightPos := bounds.Center.Sub(dir.Mul(2 * r))
	up := WorldUp
	if nearlyZero(up.Cross(dir)) {
		up = fallbackUp
	}
	view := LookAtLH(lightPos, bounds.Center, up)

	c := TransformCoord(view, bounds.Center)
	box := LightBox{
		Left: c[0] - r, Right: c[0] + r,
		Bottom: c[1] - r, Top: c[1] + r,
		Near: c[2] - r, Far: c[2] + r,
	}
	proj := OrthoOffCenterLH(box.Left, box.Right, box.Bottom, box.Top, box.Near, box.Far)

	return LightMatrices{
		View:            view,
		Proj:            proj,
		ShadowTransform: TextureSpaceRemap().Mul4(proj).Mul4(view),
		LightPos:        lightPos,
		NearZ:           box.Near,
		FarZ:            box.Far,
		Box:             box,
	}
}

// ShadowMap is the depth target the shadow pass renders into and the
// camera pass samples.
type ShadowMap struct {
	Width, Height int
	Depth         DepthTarget
	Viewport      Viewport
}

func NewShadowMap(dev Device, width, height int) (*ShadowMap, error) {
	dt, err := dev.CreateDepthTarget("shadowMap", width, height, true)
	if err != nil {
		return nil, fmt.Errorf("create %dx%d shadow map: %w", width, height, err)
	}
	return &ShadowMap{
		Width:  width,
		Height: height,
		Depth:  dt,
		Viewport: Viewport{
			Width:    float32(width),
			Height:   float32(height),
			MaxDepth: 1,
		},
	}, nil
}

package behaviour

import (
	"ShadowTerrain/internal/renderer"

	"github.com/go-gl/mathgl/mgl32"
)

// LightRig holds the three directional lights of the scene. Base is the
// unrotated setup; Directions is what the current frame uses.
type LightRig struct {
	Base       [renderer.MaxLights]mgl32.Vec3
	Directions [renderer.MaxLights]mgl32.Vec3
	Strengths  [renderer.MaxLights]mgl32.Vec3
	Angle      float32
}

// DefaultLightRig is a key light from above and behind plus two weaker
// fill lights.
func DefaultLightRig() *LightRig {
	rig := &LightRig{
		Base: [renderer.MaxLights]mgl32.Vec3{
			{0.57735, -0.57735, 0.57735},
			{-0.57735, -0.57735, 0.57735},
			{0, -0.707, -0.707},
		},
		Strengths: [renderer.MaxLights]mgl32.Vec3{
			{0.9, 0.8, 0.7},
			{0.4, 0.4, 0.4},
			{0.2, 0.2, 0.2},
		},
	}
	rig.Directions = rig.Base
	return rig
}

// Rotate turns every light to angle radians about the world y axis.
func (r *LightRig) Rotate(angle float32) {
	r.Angle = angle
	rot := mgl32.HomogRotate3DY(angle)
	for i, d := range r.Base {
		r.Directions[i] = renderer.TransformNormal(rot, d)
	}
}

// KeyLight is the light that casts shadows.
func (r *LightRig) KeyLight() mgl32.Vec3 { return r.Directions[0] }

func (r *LightRig) Constants() []renderer.LightConstants {
	out := make([]renderer.LightConstants, renderer.MaxLights)
	for i := range out {
		out[i] = renderer.LightConstants{Direction: r.Directions[i], Strength: r.Strengths[i]}
	}
	return out
}

// LightRotation spins a rig at Speed radians per second.
type LightRotation struct {
	Rig   *LightRig
	Speed float32
}

func (l *LightRotation) Start() error {
	l.Rig.Rotate(l.Rig.Angle)
	return nil
}

func (l *LightRotation) Update(dt float32) error {
	l.Rig.Rotate(l.Rig.Angle + l.Speed*dt)
	return nil
}

// TextureScroll moves a material's texture transform, wrapping each
// offset back into [0,1).
type TextureScroll struct {
	Registry *renderer.Registry
	Material renderer.MaterialID
	SpeedU   float32
	SpeedV   float32

	U, V float32
}

func (s *TextureScroll) Start() error { return nil }

func (s *TextureScroll) Update(dt float32) error {
	s.U = wrap01(s.U + s.SpeedU*dt)
	s.V = wrap01(s.V + s.SpeedV*dt)
	s.Registry.SetMaterialTransform(s.Material, mgl32.Translate3D(s.U, s.V, 0))
	return nil
}

func wrap01(x float32) float32 {
	for x >= 1 {
		x--
	}
	for x < 0 {
		x++
	}
	return x
}

package renderer

import "github.com/go-gl/mathgl/mgl32"

type MaterialID int

// Material carries the shading parameters written into the per-frame
// material table at CBIndex.
type Material struct {
	// HOT DATA - copied into the frame slot whenever dirty
	DiffuseAlbedo   mgl32.Vec4
	FresnelR0       mgl32.Vec3
	Roughness       float32
	Transform       mgl32.Mat4 // texture transform, animated for scrolling textures
	DiffuseMapIndex uint32
	NormalMapIndex  uint32
	NumFramesDirty  int

	// COLD DATA
	Name    string
	CBIndex int
}

type MaterialDesc struct {
	Name            string
	DiffuseAlbedo   mgl32.Vec4
	FresnelR0       mgl32.Vec3
	Roughness       float32
	Transform       mgl32.Mat4 // zero value means identity
	DiffuseMapIndex uint32
	NormalMapIndex  uint32
}

func (m *Material) data() MaterialData {
	return MaterialData{
		DiffuseAlbedo:   m.DiffuseAlbedo,
		FresnelR0:       m.FresnelR0,
		Roughness:       m.Roughness,
		MatTransform:    m.Transform,
		DiffuseMapIndex: m.DiffuseMapIndex,
		NormalMapIndex:  m.NormalMapIndex,
	}
}

func identityIfZero(m mgl32.Mat4) mgl32.Mat4 {
	if m == (mgl32.Mat4{}) {
		return mgl32.Ident4()
	}
	return m
}

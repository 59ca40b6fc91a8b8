package renderer

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is the single vertex layout used by terrain, shapes and water.
type Vertex struct {
	Pos      mgl32.Vec3
	Normal   mgl32.Vec3
	TexC     mgl32.Vec2
	TangentU mgl32.Vec3
}

// VertexStride is the packed size of a Vertex in bytes.
const VertexStride = 11 * 4

// Attribute byte offsets inside a packed vertex.
const (
	VertexPosOffset     = 0
	VertexNormalOffset  = 12
	VertexTexCOffset    = 24
	VertexTangentOffset = 32
)

func putFloats(dst []byte, fs ...float32) []byte {
	for _, f := range fs {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}

// AppendVertices packs vertices little-endian onto dst.
func AppendVertices(dst []byte, vs []Vertex) []byte {
	for _, v := range vs {
		dst = putFloats(dst,
			v.Pos[0], v.Pos[1], v.Pos[2],
			v.Normal[0], v.Normal[1], v.Normal[2],
			v.TexC[0], v.TexC[1],
			v.TangentU[0], v.TangentU[1], v.TangentU[2])
	}
	return dst
}

func AppendIndices(dst []byte, indices []uint32) []byte {
	for _, i := range indices {
		dst = binary.LittleEndian.AppendUint32(dst, i)
	}
	return dst
}

// DecodeVertex reads one packed vertex.
func DecodeVertex(b []byte) Vertex {
	f := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return Vertex{
		Pos:      mgl32.Vec3{f(0), f(1), f(2)},
		Normal:   mgl32.Vec3{f(3), f(4), f(5)},
		TexC:     mgl32.Vec2{f(6), f(7)},
		TangentU: mgl32.Vec3{f(8), f(9), f(10)},
	}
}

package renderer

import (
	"fmt"

	"ShadowTerrain/internal/logger"

	"go.uber.org/zap"
)

// Submesh is a draw range inside a MeshGeometry.
type Submesh struct {
	IndexCount uint32
	StartIndex uint32
	BaseVertex int32

	// Bounds of the range in object space.
	Bounds BoundingSphere
}

// MeshGeometry owns one vertex and one index buffer shared by several
// named submeshes.
type MeshGeometry struct {
	Name string

	VertexBuffer Buffer
	IndexBuffer  Buffer
	VertexCount  int
	IndexCount   int

	// Dynamic geometries take their vertices from the frame slot's
	// DynamicVB each frame; VertexBuffer is nil for them.
	Dynamic bool

	DrawArgs map[string]Submesh
}

// MeshData is CPU-side geometry before upload.
type MeshData struct {
	Vertices []Vertex
	Indices  []uint32
}

// UploadGeometry copies vertices and indices into fresh device buffers.
func UploadGeometry(dev Device, name string, vertices []Vertex, indices []uint32, drawArgs map[string]Submesh) (*MeshGeometry, error) {
	geo := &MeshGeometry{
		Name:        name,
		VertexCount: len(vertices),
		IndexCount:  len(indices),
		DrawArgs:    drawArgs,
	}

	vb, err := dev.CreateBuffer(name+".vb", VertexBuffer, len(vertices)*VertexStride)
	if err != nil {
		return nil, fmt.Errorf("create vertex buffer for %s: %w", name, err)
	}
	if err := vb.Write(0, AppendVertices(make([]byte, 0, len(vertices)*VertexStride), vertices)); err != nil {
		return nil, fmt.Errorf("upload vertices for %s: %w", name, err)
	}
	geo.VertexBuffer = vb

	ib, err := dev.CreateBuffer(name+".ib", IndexBuffer, len(indices)*4)
	if err != nil {
		return nil, fmt.Errorf("create index buffer for %s: %w", name, err)
	}
	if err := ib.Write(0, AppendIndices(make([]byte, 0, len(indices)*4), indices)); err != nil {
		return nil, fmt.Errorf("upload indices for %s: %w", name, err)
	}
	geo.IndexBuffer = ib

	logger.Log.Info("Geometry uploaded",
		zap.String("name", name),
		zap.Int("vertices", len(vertices)),
		zap.Int("indices", len(indices)),
		zap.Int("submeshes", len(drawArgs)))
	return geo, nil
}

// NewDynamicGeometry creates a geometry whose index buffer is static and
// whose vertices are streamed per frame.
func NewDynamicGeometry(dev Device, name string, vertexCount int, indices []uint32, drawArgs map[string]Submesh) (*MeshGeometry, error) {
	ib, err := dev.CreateBuffer(name+".ib", IndexBuffer, len(indices)*4)
	if err != nil {
		return nil, fmt.Errorf("create index buffer for %s: %w", name, err)
	}
	if err := ib.Write(0, AppendIndices(make([]byte, 0, len(indices)*4), indices)); err != nil {
		return nil, fmt.Errorf("upload indices for %s: %w", name, err)
	}
	return &MeshGeometry{
		Name:        name,
		IndexBuffer: ib,
		VertexCount: vertexCount,
		IndexCount:  len(indices),
		Dynamic:     true,
		DrawArgs:    drawArgs,
	}, nil
}

// MergeMeshes packs several meshes into one vertex/index array pair and
// returns the draw range of each under its name.
func MergeMeshes(names []string, meshes []MeshData) ([]Vertex, []uint32, map[string]Submesh) {
	var vertices []Vertex
	var indices []uint32
	args := make(map[string]Submesh, len(meshes))

	for i, m := range meshes {
		args[names[i]] = Submesh{
			IndexCount: uint32(len(m.Indices)),
			StartIndex: uint32(len(indices)),
			BaseVertex: int32(len(vertices)),
			Bounds:     BoundsOf(m.Vertices),
		}
		vertices = append(vertices, m.Vertices...)
		indices = append(indices, m.Indices...)
	}
	return vertices, indices, args
}

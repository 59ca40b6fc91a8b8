package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CreateSphere builds a UV sphere centered at the origin. Triangles wind
// clockwise when seen from outside.
func CreateSphere(radius float32, slices, stacks int) MeshData {
	var mesh MeshData

	mesh.Vertices = append(mesh.Vertices, Vertex{
		Pos:      mgl32.Vec3{0, radius, 0},
		Normal:   mgl32.Vec3{0, 1, 0},
		TexC:     mgl32.Vec2{0, 0},
		TangentU: mgl32.Vec3{1, 0, 0},
	})

	phiStep := math.Pi / float64(stacks)
	thetaStep := 2 * math.Pi / float64(slices)

	for i := 1; i <= stacks-1; i++ {
		phi := float64(i) * phiStep
		for j := 0; j <= slices; j++ {
			theta := float64(j) * thetaStep
			sinPhi, cosPhi := math.Sincos(phi)
			sinTheta, cosTheta := math.Sincos(theta)

			p := mgl32.Vec3{
				radius * float32(sinPhi*cosTheta),
				radius * float32(cosPhi),
				radius * float32(sinPhi*sinTheta),
			}
			t := mgl32.Vec3{
				-radius * float32(sinPhi*sinTheta),
				0,
				radius * float32(sinPhi*cosTheta),
			}
			mesh.Vertices = append(mesh.Vertices, Vertex{
				Pos:      p,
				Normal:   p.Normalize(),
				TexC:     mgl32.Vec2{float32(theta / (2 * math.Pi)), float32(phi / math.Pi)},
				TangentU: safeNormalize(t, fallbackRight),
			})
		}
	}

	mesh.Vertices = append(mesh.Vertices, Vertex{
		Pos:      mgl32.Vec3{0, -radius, 0},
		Normal:   mgl32.Vec3{0, -1, 0},
		TexC:     mgl32.Vec2{0, 1},
		TangentU: mgl32.Vec3{1, 0, 0},
	})

	for i := 1; i <= slices; i++ {
		mesh.Indices = append(mesh.Indices, 0, uint32(i+1), uint32(i))
	}

	base := uint32(1)
	ring := uint32(slices + 1)
	for i := uint32(0); i < uint32(stacks-2); i++ {
		for j := uint32(0); j < uint32(slices); j++ {
			mesh.Indices = append(mesh.Indices,
				base+i*ring+j, base+i*ring+j+1, base+(i+1)*ring+j,
				base+(i+1)*ring+j, base+i*ring+j+1, base+(i+1)*ring+j+1)
		}
	}

	south := uint32(len(mesh.Vertices) - 1)
	base = south - ring
	for i := uint32(0); i < uint32(slices); i++ {
		mesh.Indices = append(mesh.Indices, south, base+i, base+i+1)
	}
	return mesh
}

// CreateBox builds an axis aligned box with four vertices per face so
// every face gets its own normal.
func CreateBox(width, height, depth float32) MeshData {
	w, h, d := width/2, height/2, depth/2
	v := func(x, y, z, nx, ny, nz, tx, ty, tz, u, vv float32) Vertex {
		return Vertex{
			Pos:      mgl32.Vec3{x, y, z},
			Normal:   mgl32.Vec3{nx, ny, nz},
			TangentU: mgl32.Vec3{tx, ty, tz},
			TexC:     mgl32.Vec2{u, vv},
		}
	}

	vertices := []Vertex{
		// front
		v(-w, -h, -d, 0, 0, -1, 1, 0, 0, 0, 1),
		v(-w, +h, -d, 0, 0, -1, 1, 0, 0, 0, 0),
		v(+w, +h, -d, 0, 0, -1, 1, 0, 0, 1, 0),
		v(+w, -h, -d, 0, 0, -1, 1, 0, 0, 1, 1),
		// back
		v(-w, -h, +d, 0, 0, 1, -1, 0, 0, 1, 1),
		v(+w, -h, +d, 0, 0, 1, -1, 0, 0, 0, 1),
		v(+w, +h, +d, 0, 0, 1, -1, 0, 0, 0, 0),
		v(-w, +h, +d, 0, 0, 1, -1, 0, 0, 1, 0),
		// top
		v(-w, +h, -d, 0, 1, 0, 1, 0, 0, 0, 1),
		v(-w, +h, +d, 0, 1, 0, 1, 0, 0, 0, 0),
		v(+w, +h, +d, 0, 1, 0, 1, 0, 0, 1, 0),
		v(+w, +h, -d, 0, 1, 0, 1, 0, 0, 1, 1),
		// bottom
		v(-w, -h, -d, 0, -1, 0, -1, 0, 0, 1, 1),
		v(+w, -h, -d, 0, -1, 0, -1, 0, 0, 0, 1),
		v(+w, -h, +d, 0, -1, 0, -1, 0, 0, 0, 0),
		v(-w, -h, +d, 0, -1, 0, -1, 0, 0, 1, 0),
		// left
		v(-w, -h, +d, -1, 0, 0, 0, 0, -1, 0, 1),
		v(-w, +h, +d, -1, 0, 0, 0, 0, -1, 0, 0),
		v(-w, +h, -d, -1, 0, 0, 0, 0, -1, 1, 0),
		v(-w, -h, -d, -1, 0, 0, 0, 0, -1, 1, 1),
		// right
		v(+w, -h, -d, 1, 0, 0, 0, 0, 1, 0, 1),
		v(+w, +h, -d, 1, 0, 0, 0, 0, 1, 0, 0),
		v(+w, +h, +d, 1, 0, 0, 0, 0, 1, 1, 0),
		v(+w, -h, +d, 1, 0, 0, 0, 0, 1, 1, 1),
	}

	indices := make([]uint32, 0, 36)
	for face := uint32(0); face < 6; face++ {
		b := face * 4
		indices = append(indices, b, b+1, b+2, b, b+2, b+3)
	}
	return MeshData{Vertices: vertices, Indices: indices}
}

// CreateGrid builds a flat rows x cols vertex grid in the xz plane,
// centered at the origin, with rows running toward -z.
func CreateGrid(width, depth float32, rows, cols int) MeshData {
	var mesh MeshData
	if rows < 2 || cols < 2 {
		return mesh
	}

	dx := width / float32(cols-1)
	dz := depth / float32(rows-1)
	du := 1 / float32(cols-1)
	dv := 1 / float32(rows-1)

	mesh.Vertices = make([]Vertex, 0, rows*cols)
	for i := 0; i < rows; i++ {
		z := depth/2 - float32(i)*dz
		for j := 0; j < cols; j++ {
			x := -width/2 + float32(j)*dx
			mesh.Vertices = append(mesh.Vertices, Vertex{
				Pos:      mgl32.Vec3{x, 0, z},
				Normal:   mgl32.Vec3{0, 1, 0},
				TangentU: mgl32.Vec3{1, 0, 0},
				TexC:     mgl32.Vec2{float32(j) * du, float32(i) * dv},
			})
		}
	}
	mesh.Indices = GridIndices(rows, cols)
	return mesh
}

// GridIndices tessellates a rows x cols vertex grid into two triangles
// per quad: (i,j),(i,j+1),(i+1,j) then (i,j+1),(i+1,j+1),(i+1,j).
func GridIndices(rows, cols int) []uint32 {
	if rows < 2 || cols < 2 {
		return nil
	}
	indices := make([]uint32, 0, (rows-1)*(cols-1)*6)
	n := uint32(cols)
	for i := uint32(0); i < uint32(rows-1); i++ {
		for j := uint32(0); j < uint32(cols-1); j++ {
			indices = append(indices,
				i*n+j, i*n+j+1, (i+1)*n+j,
				i*n+j+1, (i+1)*n+j+1, (i+1)*n+j)
		}
	}
	return indices
}

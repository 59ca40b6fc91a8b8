package renderer

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"ShadowTerrain/internal/logger"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrInvalidGrid   = errors.New("invalid height grid")
	ErrInvalidRegion = errors.New("invalid terrain region")
)

// Region names used by the default layout.
const (
	RegionGround     = "ground"
	RegionVegetation = "vegetation"
	RegionWaterBed   = "waterBed"
	RegionRoad       = "road"
)

// HeightGrid is a row-major grid of height samples, one per vertex.
type HeightGrid struct {
	Rows    int
	Cols    int
	Samples []float32
}

func (g HeightGrid) Validate() error {
	if g.Rows < 2 || g.Cols < 2 {
		return fmt.Errorf("%w: need at least 2x2 samples, got %dx%d", ErrInvalidGrid, g.Rows, g.Cols)
	}
	if len(g.Samples) != g.Rows*g.Cols {
		return fmt.Errorf("%w: %dx%d grid has %d samples", ErrInvalidGrid, g.Rows, g.Cols, len(g.Samples))
	}
	return nil
}

func (g HeightGrid) At(row, col int) float32 {
	return g.Samples[row*g.Cols+col]
}

// Patch addresses a sub-rectangle of grid vertices.
type Patch struct {
	Row, Col   int
	Rows, Cols int
}

func (p Patch) quads() int {
	return (p.Rows - 1) * (p.Cols - 1)
}

// RegionDesc names a part of the terrain built from one or more patches.
// Regions may share boundary columns with their neighbours, which keeps
// the seams between them closed.
type RegionDesc struct {
	Name       string
	Patches    []Patch
	HeightBias float32
}

type TerrainDesc struct {
	Width       float32
	Depth       float32
	HeightScale float32
	Regions     []RegionDesc
	// Workers bounds the number of regions built concurrently. Zero
	// means GOMAXPROCS.
	Workers int
}

type TerrainRegion struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

type Terrain struct {
	Width   float32
	Depth   float32
	Regions []*TerrainRegion
}

// BuildTerrain turns a height grid into per-region vertex and index
// arrays. Grid and regions are validated first and every problem is
// reported.
func BuildTerrain(grid HeightGrid, desc TerrainDesc) (*Terrain, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if err := validateRegions(grid, desc); err != nil {
		return nil, err
	}

	start := time.Now()
	workers := desc.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	pool := pond.NewResultPool[*TerrainRegion](workers)
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for _, rd := range desc.Regions {
		rd := rd
		group.Submit(func() *TerrainRegion {
			return buildRegion(grid, desc, rd)
		})
	}
	regions, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("build terrain regions: %w", err)
	}

	t := &Terrain{Width: desc.Width, Depth: desc.Depth, Regions: regions}
	for _, r := range regions {
		logger.Log.Debug("Terrain region built",
			zap.String("region", r.Name),
			zap.Int("vertices", len(r.Vertices)),
			zap.Int("indices", len(r.Indices)))
	}
	logger.Log.Info("Terrain built",
		zap.Int("rows", grid.Rows),
		zap.Int("cols", grid.Cols),
		zap.Int("regions", len(regions)),
		zap.Duration("elapsed", time.Since(start)))
	return t, nil
}

func validateRegions(grid HeightGrid, desc TerrainDesc) error {
	var err error
	if desc.Width <= 0 || desc.Depth <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: terrain extents %vx%v", ErrInvalidRegion, desc.Width, desc.Depth))
	}
	if len(desc.Regions) == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: no regions", ErrInvalidRegion))
	}

	seen := make(map[string]bool, len(desc.Regions))
	for _, rd := range desc.Regions {
		if rd.Name == "" {
			err = multierr.Append(err, fmt.Errorf("%w: region without a name", ErrInvalidRegion))
		} else if seen[rd.Name] {
			err = multierr.Append(err, fmt.Errorf("%w: duplicate region %q", ErrInvalidRegion, rd.Name))
		}
		seen[rd.Name] = true

		if len(rd.Patches) == 0 {
			err = multierr.Append(err, fmt.Errorf("%w: region %q has no patches", ErrInvalidRegion, rd.Name))
		}
		for _, p := range rd.Patches {
			if p.Rows < 2 || p.Cols < 2 {
				err = multierr.Append(err, fmt.Errorf("%w: region %q patch %+v is smaller than one quad", ErrInvalidRegion, rd.Name, p))
				continue
			}
			if p.Row < 0 || p.Col < 0 || p.Row+p.Rows > grid.Rows || p.Col+p.Cols > grid.Cols {
				err = multierr.Append(err, fmt.Errorf("%w: region %q patch %+v exceeds %dx%d grid", ErrInvalidRegion, rd.Name, p, grid.Rows, grid.Cols))
			}
		}
	}
	return err
}

func buildRegion(grid HeightGrid, desc TerrainDesc, rd RegionDesc) *TerrainRegion {
	dx := desc.Width / float32(grid.Cols-1)
	dz := desc.Depth / float32(grid.Rows-1)
	originX := -desc.Width / 2
	originZ := desc.Depth / 2

	var nv, ni int
	for _, p := range rd.Patches {
		nv += p.Rows * p.Cols
		ni += p.quads() * 6
	}
	region := &TerrainRegion{
		Name:     rd.Name,
		Vertices: make([]Vertex, 0, nv),
		Indices:  make([]uint32, 0, ni),
	}

	for _, p := range rd.Patches {
		base := uint32(len(region.Vertices))
		for i := 0; i < p.Rows; i++ {
			row := p.Row + i
			for j := 0; j < p.Cols; j++ {
				col := p.Col + j
				region.Vertices = append(region.Vertices, Vertex{
					Pos: mgl32.Vec3{
						originX + float32(col)*dx,
						grid.At(row, col)*desc.HeightScale + rd.HeightBias,
						originZ - float32(row)*dz,
					},
					TexC: mgl32.Vec2{float32(col) * dx, float32(row) * dz},
				})
			}
		}
		for _, idx := range GridIndices(p.Rows, p.Cols) {
			region.Indices = append(region.Indices, base+idx)
		}
	}

	accumulateNormals(region.Vertices, region.Indices)
	normalizeNormals(region.Vertices)
	deriveTangents(region.Vertices)
	return region
}

// accumulateNormals adds each triangle's unnormalized face normal to its
// three vertices. Larger triangles weigh more.
func accumulateNormals(vertices []Vertex, indices []uint32) {
	for k := 0; k+2 < len(indices); k += 3 {
		i0, i1, i2 := indices[k], indices[k+1], indices[k+2]
		v0, v1, v2 := vertices[i0].Pos, vertices[i1].Pos, vertices[i2].Pos

		n := v1.Sub(v0).Cross(v2.Sub(v0))
		vertices[i0].Normal = vertices[i0].Normal.Add(n)
		vertices[i1].Normal = vertices[i1].Normal.Add(n)
		vertices[i2].Normal = vertices[i2].Normal.Add(n)
	}
}

// normalizeNormals runs once every triangle has been accumulated.
// Vertices referenced by no triangle get the world up vector.
func normalizeNormals(vertices []Vertex) {
	for i := range vertices {
		vertices[i].Normal = safeNormalize(vertices[i].Normal, WorldUp)
	}
}

// deriveTangents needs unit normals.
func deriveTangents(vertices []Vertex) {
	for i := range vertices {
		t := vertices[i].Normal.Cross(WorldUp)
		vertices[i].TangentU = safeNormalize(t, fallbackRight)
	}
}

func (t *Terrain) Region(name string) *TerrainRegion {
	for _, r := range t.Regions {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Merge packs all regions into one vertex and index array, one submesh
// per region.
func (t *Terrain) Merge() ([]Vertex, []uint32, map[string]Submesh) {
	names := make([]string, len(t.Regions))
	meshes := make([]MeshData, len(t.Regions))
	for i, r := range t.Regions {
		names[i] = r.Name
		meshes[i] = MeshData{Vertices: r.Vertices, Indices: r.Indices}
	}
	return MergeMeshes(names, meshes)
}

// DefaultRegionLayout splits a grid the way the demo heightmap was cut: a
// river bed running along z through the middle, ground on its -x side,
// vegetation on its +x side, and a road crossing both banks slightly
// above the ground. Boundaries are proportional so any grid size works.
func DefaultRegionLayout(rows, cols int) []RegionDesc {
	at := func(frac float64, n int) int {
		return int(math.Round(frac * float64(n-1)))
	}

	riverStart := at(224.0/511.0, cols)
	riverEnd := at(287.0/511.0, cols)
	roadStart := at(224.0/511.0, rows)
	roadEnd := at(287.0/511.0, rows)

	return []RegionDesc{
		{Name: RegionGround, Patches: []Patch{{Row: 0, Col: 0, Rows: rows, Cols: riverStart + 1}}},
		{Name: RegionVegetation, Patches: []Patch{{Row: 0, Col: riverEnd, Rows: rows, Cols: cols - riverEnd}}},
		{Name: RegionWaterBed, Patches: []Patch{{Row: 0, Col: riverStart, Rows: rows, Cols: riverEnd - riverStart + 1}}},
		{
			Name:       RegionRoad,
			HeightBias: 0.1,
			Patches: []Patch{
				{Row: roadStart, Col: 0, Rows: roadEnd - roadStart + 1, Cols: riverStart + 1},
				{Row: roadStart, Col: riverEnd, Rows: roadEnd - roadStart + 1, Cols: cols - riverEnd},
			},
		},
	}
}

package renderer

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"
)

func flatGrid(rows, cols int) HeightGrid {
	return HeightGrid{Rows: rows, Cols: cols, Samples: make([]float32, rows*cols)}
}

func wholeGrid(name string, rows, cols int) RegionDesc {
	return RegionDesc{Name: name, Patches: []Patch{{Rows: rows, Cols: cols}}}
}

func vecNear(a, b mgl32.Vec3, tol float32) bool {
	return a.Sub(b).Len() <= tol
}

func TestBuildTerrainFlatGrid(t *testing.T) {
	terrain, err := BuildTerrain(flatGrid(4, 4), TerrainDesc{
		Width: 30, Depth: 30, HeightScale: 1,
		Regions: []RegionDesc{wholeGrid(RegionGround, 4, 4)},
	})
	if err != nil {
		t.Fatalf("BuildTerrain failed: %v", err)
	}

	r := terrain.Region(RegionGround)
	if r == nil {
		t.Fatal("ground region missing")
	}
	if len(r.Vertices) != 16 {
		t.Errorf("Expected 16 vertices, got %d", len(r.Vertices))
	}
	if len(r.Indices) != 54 {
		t.Errorf("Expected 54 indices, got %d", len(r.Indices))
	}
	for i, v := range r.Vertices {
		if !vecNear(v.Normal, mgl32.Vec3{0, 1, 0}, 1e-6) {
			t.Errorf("vertex %d: expected up normal, got %v", i, v.Normal)
		}
		if !vecNear(v.TangentU, mgl32.Vec3{1, 0, 0}, 1e-6) {
			t.Errorf("vertex %d: expected +x tangent fallback, got %v", i, v.TangentU)
		}
	}

	if first := r.Vertices[0].Pos; !vecNear(first, mgl32.Vec3{-15, 0, 15}, 1e-5) {
		t.Errorf("Expected first vertex at (-15,0,15), got %v", first)
	}
	if last := r.Vertices[15].Pos; !vecNear(last, mgl32.Vec3{15, 0, -15}, 1e-5) {
		t.Errorf("Expected last vertex at (15,0,-15), got %v", last)
	}
	if tc := r.Vertices[5].TexC; tc != (mgl32.Vec2{10, 10}) {
		t.Errorf("Expected texcoord (10,10) for vertex (1,1), got %v", tc)
	}
}

func TestBuildTerrainSlopedNormals(t *testing.T) {
	// Heights rise by one per column on a unit-spaced grid, so the surface
	// is y = x + c and every normal is (-1,1,0)/sqrt2.
	grid := flatGrid(3, 3)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			grid.Samples[r*3+c] = float32(c)
		}
	}
	terrain, err := BuildTerrain(grid, TerrainDesc{
		Width: 2, Depth: 2, HeightScale: 1,
		Regions: []RegionDesc{wholeGrid("slope", 3, 3)},
	})
	if err != nil {
		t.Fatalf("BuildTerrain failed: %v", err)
	}

	want := mgl32.Vec3{-1, 1, 0}.Normalize()
	for i, v := range terrain.Regions[0].Vertices {
		if l := v.Normal.Len(); math.Abs(float64(l)-1) > 1e-5 {
			t.Errorf("vertex %d: normal not unit length (%f)", i, l)
		}
		if !vecNear(v.Normal, want, 1e-5) {
			t.Errorf("vertex %d: expected normal %v, got %v", i, want, v.Normal)
		}
		if d := v.Normal.Dot(v.TangentU); math.Abs(float64(d)) > 1e-5 {
			t.Errorf("vertex %d: tangent not perpendicular to normal (dot %f)", i, d)
		}
	}
}

func TestBuildTerrainIrregularNormals(t *testing.T) {
	// One quad whose two triangles face different ways:
	//   v0 (-0.5,0,0.5)  v1 (0.5,1,0.5)
	//   v2 (-0.5,2,-0.5) v3 (0.5,0,-0.5)
	// (v1-v0)x(v2-v0) = (-1,1,2) and (v3-v1)x(v2-v1) = (2,1,-1).
	grid := HeightGrid{Rows: 2, Cols: 2, Samples: []float32{0, 1, 2, 0}}
	terrain, err := BuildTerrain(grid, TerrainDesc{
		Width: 1, Depth: 1, HeightScale: 1,
		Regions: []RegionDesc{wholeGrid("bumps", 2, 2)},
	})
	if err != nil {
		t.Fatalf("BuildTerrain failed: %v", err)
	}

	s6 := float32(math.Sqrt(6))
	want := []mgl32.Vec3{
		{-1 / s6, 1 / s6, 2 / s6},
		{1 / s6, 2 / s6, 1 / s6},
		{1 / s6, 2 / s6, 1 / s6},
		{2 / s6, 1 / s6, -1 / s6},
	}
	vs := terrain.Regions[0].Vertices
	if len(vs) != len(want) {
		t.Fatalf("Expected %d vertices, got %d", len(want), len(vs))
	}
	for i, v := range vs {
		if !vecNear(v.Normal, want[i], 1e-5) {
			t.Errorf("vertex %d: expected normal %v, got %v", i, want[i], v.Normal)
		}
		if d := v.Normal.Dot(v.TangentU); math.Abs(float64(d)) > 1e-5 {
			t.Errorf("vertex %d: tangent not perpendicular to normal (dot %f)", i, d)
		}
	}
	if tu := vs[0].TangentU; !vecNear(tu, mgl32.Vec3{-2, 0, -1}.Normalize(), 1e-5) {
		t.Errorf("Expected vertex 0 tangent along (-2,0,-1), got %v", tu)
	}
}

func TestBuildTerrainHeightBias(t *testing.T) {
	rd := wholeGrid(RegionRoad, 2, 2)
	rd.HeightBias = 0.1
	grid := HeightGrid{Rows: 2, Cols: 2, Samples: []float32{1, 1, 1, 1}}
	terrain, err := BuildTerrain(grid, TerrainDesc{Width: 1, Depth: 1, HeightScale: 2, Regions: []RegionDesc{rd}})
	if err != nil {
		t.Fatalf("BuildTerrain failed: %v", err)
	}
	for _, v := range terrain.Regions[0].Vertices {
		if math.Abs(float64(v.Pos.Y())-2.1) > 1e-6 {
			t.Errorf("Expected height 2.1, got %f", v.Pos.Y())
		}
	}
}

func TestBuildTerrainRejectsBadGrid(t *testing.T) {
	_, err := BuildTerrain(HeightGrid{Rows: 1, Cols: 5, Samples: make([]float32, 5)}, TerrainDesc{
		Width: 1, Depth: 1, Regions: []RegionDesc{wholeGrid("a", 1, 5)},
	})
	if !errors.Is(err, ErrInvalidGrid) {
		t.Fatalf("Expected ErrInvalidGrid, got %v", err)
	}

	_, err = BuildTerrain(HeightGrid{Rows: 2, Cols: 2, Samples: make([]float32, 3)}, TerrainDesc{
		Width: 1, Depth: 1, Regions: []RegionDesc{wholeGrid("a", 2, 2)},
	})
	if !errors.Is(err, ErrInvalidGrid) {
		t.Fatalf("Expected ErrInvalidGrid for a short sample slice, got %v", err)
	}
}

func TestBuildTerrainReportsEveryRegionProblem(t *testing.T) {
	_, err := BuildTerrain(flatGrid(4, 4), TerrainDesc{
		Width: 10, Depth: 10,
		Regions: []RegionDesc{
			{Name: "", Patches: []Patch{{Rows: 2, Cols: 2}}},
			{Name: "wide", Patches: []Patch{{Col: 2, Rows: 2, Cols: 4}}},
			{Name: "empty"},
		},
	})
	if !errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("Expected ErrInvalidRegion, got %v", err)
	}
	if n := len(multierr.Errors(err)); n != 3 {
		t.Errorf("Expected 3 aggregated errors, got %d: %v", n, err)
	}
}

func TestDefaultRegionLayoutSharesSeams(t *testing.T) {
	const n = 33
	terrain, err := BuildTerrain(flatGrid(n, n), TerrainDesc{
		Width: 320, Depth: 320, HeightScale: 1,
		Regions: DefaultRegionLayout(n, n),
	})
	if err != nil {
		t.Fatalf("BuildTerrain with the default layout failed: %v", err)
	}
	if len(terrain.Regions) != 4 {
		t.Fatalf("Expected 4 regions, got %d", len(terrain.Regions))
	}

	maxX := func(r *TerrainRegion) float32 {
		m := float32(math.Inf(-1))
		for _, v := range r.Vertices {
			if v.Pos.X() > m {
				m = v.Pos.X()
			}
		}
		return m
	}
	minX := func(r *TerrainRegion) float32 {
		m := float32(math.Inf(1))
		for _, v := range r.Vertices {
			if v.Pos.X() < m {
				m = v.Pos.X()
			}
		}
		return m
	}

	ground := terrain.Region(RegionGround)
	water := terrain.Region(RegionWaterBed)
	veg := terrain.Region(RegionVegetation)
	if maxX(ground) != minX(water) {
		t.Errorf("ground ends at x=%f but the water bed starts at x=%f", maxX(ground), minX(water))
	}
	if maxX(water) != minX(veg) {
		t.Errorf("water bed ends at x=%f but vegetation starts at x=%f", maxX(water), minX(veg))
	}

	road := terrain.Region(RegionRoad)
	if road.Vertices[0].Pos.Y() <= 0 {
		t.Errorf("road should sit above flat ground, got y=%f", road.Vertices[0].Pos.Y())
	}
}

func TestTerrainMergeOffsets(t *testing.T) {
	terrain, err := BuildTerrain(flatGrid(5, 5), TerrainDesc{
		Width: 4, Depth: 4, HeightScale: 1,
		Regions: []RegionDesc{
			{Name: "left", Patches: []Patch{{Rows: 5, Cols: 3}}},
			{Name: "right", Patches: []Patch{{Col: 2, Rows: 5, Cols: 3}}},
		},
	})
	if err != nil {
		t.Fatalf("BuildTerrain failed: %v", err)
	}

	vertices, indices, args := terrain.Merge()
	if len(vertices) != 30 || len(indices) != 96 {
		t.Fatalf("Expected 30 vertices and 96 indices, got %d and %d", len(vertices), len(indices))
	}
	right := args["right"]
	if right.BaseVertex != 15 || right.StartIndex != 48 || right.IndexCount != 48 {
		t.Errorf("Unexpected draw range for right region: %+v", right)
	}
	if right.Bounds.Radius <= 0 {
		t.Error("merged submesh should carry bounds")
	}
}

func TestGridIndicesWinding(t *testing.T) {
	idx := GridIndices(2, 2)
	want := []uint32{0, 1, 2, 1, 3, 2}
	if len(idx) != len(want) {
		t.Fatalf("Expected %d indices, got %d", len(want), len(idx))
	}
	for i := range want {
		if idx[i] != want[i] {
			t.Errorf("index %d: expected %d, got %d", i, want[i], idx[i])
		}
	}
}

package water

import (
	"errors"
	"math"
	"testing"

	"ShadowTerrain/internal/renderer"

	mgl32 "github.com/go-gl/mathgl/mgl32"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Rows, cfg.Cols = 32, 24
	return cfg
}

func TestNewSimulationLayout(t *testing.T) {
	s, err := NewSimulation(smallConfig())
	if err != nil {
		t.Fatalf("NewSimulation failed: %v", err)
	}
	if s.VertexCount() != 32*24 {
		t.Errorf("Expected %d vertices, got %d", 32*24, s.VertexCount())
	}
	if s.TriangleCount() != 31*23*2 {
		t.Errorf("Expected %d triangles, got %d", 31*23*2, s.TriangleCount())
	}
	if len(s.Indices()) != 3*s.TriangleCount() {
		t.Errorf("Expected %d indices, got %d", 3*s.TriangleCount(), len(s.Indices()))
	}

	first := s.Position(0)
	if first != (mgl32.Vec3{-11.5, 0, 15.5}) {
		t.Errorf("Expected first grid point at (-11.5,0,15.5), got %v", first)
	}
	if s.Normal(5) != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("Expected flat normal, got %v", s.Normal(5))
	}
}

func TestNewSimulationRejectsUnstableParameters(t *testing.T) {
	cfg := smallConfig()
	cfg.Speed = 100
	if _, err := NewSimulation(cfg); !errors.Is(err, ErrUnstable) {
		t.Errorf("Expected ErrUnstable, got %v", err)
	}
}

func TestDisturbSpreadsToNeighbours(t *testing.T) {
	s, _ := NewSimulation(smallConfig())

	if err := s.Disturb(10, 10, 2); err != nil {
		t.Fatalf("Disturb failed: %v", err)
	}
	n := s.Cols()
	if y := s.Position(10*n + 10).Y(); y != 2 {
		t.Errorf("Expected center height 2, got %f", y)
	}
	for _, k := range []int{10*n + 9, 10*n + 11, 9*n + 10, 11*n + 10} {
		if y := s.Position(k).Y(); y != 1 {
			t.Errorf("Expected neighbour %d at height 1, got %f", k, y)
		}
	}

	if err := s.Disturb(1, 10, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Expected ErrOutOfBounds near the border, got %v", err)
	}
}

func TestUpdateWaitsForFullStep(t *testing.T) {
	s, _ := NewSimulation(smallConfig())

	if s.Update(0.01) {
		t.Error("Update should not step before the time step elapsed")
	}
	if !s.Update(0.025) {
		t.Error("Update should step once the time step elapsed")
	}
	if s.Steps != 1 {
		t.Errorf("Expected 1 step, got %d", s.Steps)
	}
}

func TestWavesPropagateAndStayBounded(t *testing.T) {
	s, _ := NewSimulation(smallConfig())
	n := s.Cols()
	_ = s.Disturb(16, 12, 1.5)

	for i := 0; i < 10; i++ {
		s.Update(0.03)
	}
	if y := s.Position(16*n + 15).Y(); y == 0 {
		t.Error("Expected the disturbance to reach nearby cells")
	}

	for i := 0; i < 500; i++ {
		s.Update(0.03)
	}
	for k := 0; k < s.VertexCount(); k++ {
		y := float64(s.Position(k).Y())
		if math.IsNaN(y) || math.Abs(y) > 3 {
			t.Fatalf("cell %d diverged to %f", k, y)
		}
		if l := s.Normal(k).Len(); math.Abs(float64(l)-1) > 1e-4 {
			t.Fatalf("cell %d normal not unit (%f)", k, l)
		}
	}
	// The border never moves.
	if y := s.Position(0).Y(); y != 0 {
		t.Errorf("Expected fixed border, got %f", y)
	}
}

func TestTickDisturbsPeriodically(t *testing.T) {
	cfg := smallConfig()
	s, _ := NewSimulation(cfg)

	// One second holds four disturbance intervals.
	for i := 0; i < 60; i++ {
		if err := s.Tick(1.0 / 60); err != nil {
			t.Fatalf("Tick failed: %v", err)
		}
	}
	moved := false
	for k := 0; k < s.VertexCount(); k++ {
		if s.Position(k).Y() != 0 {
			moved = true
			break
		}
	}
	if !moved {
		t.Error("Expected random disturbances to move the surface")
	}
}

func TestFillVerticesTexCoords(t *testing.T) {
	s, _ := NewSimulation(smallConfig())
	verts := make([]renderer.Vertex, s.VertexCount())
	s.FillVertices(verts)

	w, d := s.Width(), s.Depth()
	for i, v := range verts {
		want := mgl32.Vec2{0.5 + v.Pos.X()/w, 0.5 - v.Pos.Z()/d}
		if v.TexC != want {
			t.Fatalf("vertex %d: expected texcoord %v, got %v", i, want, v.TexC)
		}
	}
	if verts[0].TexC.X() <= 0 || verts[0].TexC.X() >= 0.5 {
		t.Errorf("left edge should map into (0,0.5), got %f", verts[0].TexC.X())
	}
}

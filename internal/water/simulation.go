// Package water simulates the river surface as a damped 2D wave equation
// solved with finite differences on a regular grid.
package water

import (
	"errors"
	"fmt"
	"math/rand"

	"ShadowTerrain/internal/logger"
	"ShadowTerrain/internal/renderer"

	mgl32 "github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

var (
	ErrUnstable    = errors.New("wave parameters are unstable")
	ErrOutOfBounds = errors.New("disturbance outside the wave interior")
)

// DisturbMargin keeps random disturbances away from the fixed border.
const DisturbMargin = 8

type Config struct {
	Rows, Cols  int
	SpatialStep float32 // distance between grid points
	TimeStep    float32 // seconds per simulation step
	Speed       float32
	Damping     float32

	// DisturbInterval is the time between random disturbances; zero
	// disables them.
	DisturbInterval float32
	MinMagnitude    float32
	MaxMagnitude    float32
	Seed            int64
}

// DefaultConfig matches the river of the terrain demo.
func DefaultConfig() Config {
	return Config{
		Rows:            500,
		Cols:            128,
		SpatialStep:     1,
		TimeStep:        0.03,
		Speed:           4,
		Damping:         0.2,
		DisturbInterval: 0.25,
		MinMagnitude:    1,
		MaxMagnitude:    1.5,
		Seed:            11,
	}
}

// Simulation holds two consecutive solutions of the wave equation and the
// derived normals and tangents of the current one.
type Simulation struct {
	// HOT DATA - touched every step
	prev     []mgl32.Vec3
	curr     []mgl32.Vec3
	normals  []mgl32.Vec3
	tangents []mgl32.Vec3
	k1       float32
	k2       float32
	k3       float32
	elapsed  float32

	// COLD DATA
	rows, cols   int
	dx, dt       float32
	cfg          Config
	rng          *rand.Rand
	sinceDisturb float32
	Steps        uint64
}

func NewSimulation(cfg Config) (*Simulation, error) {
	if cfg.Rows < 2*DisturbMargin || cfg.Cols < 2*DisturbMargin {
		return nil, fmt.Errorf("wave grid %dx%d is smaller than %dx%d", cfg.Rows, cfg.Cols, 2*DisturbMargin, 2*DisturbMargin)
	}
	if cfg.SpatialStep <= 0 || cfg.TimeStep <= 0 {
		return nil, fmt.Errorf("%w: dx=%v dt=%v", ErrUnstable, cfg.SpatialStep, cfg.TimeStep)
	}

	dx, dt := cfg.SpatialStep, cfg.TimeStep
	d := cfg.Damping*dt + 2
	e := (cfg.Speed * cfg.Speed) * (dt * dt) / (dx * dx)
	if e >= 0.5 {
		return nil, fmt.Errorf("%w: speed %v with dt=%v dx=%v", ErrUnstable, cfg.Speed, dt, dx)
	}

	n := cfg.Rows * cfg.Cols
	s := &Simulation{
		prev:     make([]mgl32.Vec3, n),
		curr:     make([]mgl32.Vec3, n),
		normals:  make([]mgl32.Vec3, n),
		tangents: make([]mgl32.Vec3, n),
		k1:       (cfg.Damping*dt - 2) / d,
		k2:       (4 - 8*e) / d,
		k3:       (2 * e) / d,
		rows:     cfg.Rows,
		cols:     cfg.Cols,
		dx:       dx,
		dt:       dt,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}

	halfWidth := float32(cfg.Cols-1) * dx * 0.5
	halfDepth := float32(cfg.Rows-1) * dx * 0.5
	for i := 0; i < cfg.Rows; i++ {
		z := halfDepth - float32(i)*dx
		for j := 0; j < cfg.Cols; j++ {
			x := -halfWidth + float32(j)*dx
			k := i*cfg.Cols + j
			s.prev[k] = mgl32.Vec3{x, 0, z}
			s.curr[k] = mgl32.Vec3{x, 0, z}
			s.normals[k] = mgl32.Vec3{0, 1, 0}
			s.tangents[k] = mgl32.Vec3{1, 0, 0}
		}
	}

	logger.Log.Info("Wave simulation created",
		zap.Int("rows", cfg.Rows),
		zap.Int("cols", cfg.Cols),
		zap.Float32("dx", dx),
		zap.Float32("dt", dt))
	return s, nil
}

func (s *Simulation) Rows() int          { return s.rows }
func (s *Simulation) Cols() int          { return s.cols }
func (s *Simulation) VertexCount() int   { return s.rows * s.cols }
func (s *Simulation) TriangleCount() int { return (s.rows - 1) * (s.cols - 1) * 2 }
func (s *Simulation) Width() float32     { return float32(s.cols) * s.dx }
func (s *Simulation) Depth() float32     { return float32(s.rows) * s.dx }

func (s *Simulation) Position(i int) mgl32.Vec3 { return s.curr[i] }
func (s *Simulation) Normal(i int) mgl32.Vec3   { return s.normals[i] }
func (s *Simulation) Tangent(i int) mgl32.Vec3  { return s.tangents[i] }

// Update advances the solution once enough time has accumulated for a
// full step. It reports whether a step ran. The border stays fixed at
// zero height.
func (s *Simulation) Update(dt float32) bool {
	s.elapsed += dt
	if s.elapsed < s.dt {
		return false
	}
	s.elapsed = 0

	n := s.cols
	for i := 1; i < s.rows-1; i++ {
		for j := 1; j < n-1; j++ {
			k := i*n + j
			// prev is overwritten with the next solution, then the two
			// buffers swap roles.
			s.prev[k][1] = s.k1*s.prev[k][1] +
				s.k2*s.curr[k][1] +
				s.k3*(s.curr[k+n][1]+s.curr[k-n][1]+s.curr[k+1][1]+s.curr[k-1][1])
		}
	}
	s.prev, s.curr = s.curr, s.prev
	s.Steps++

	for i := 1; i < s.rows-1; i++ {
		for j := 1; j < n-1; j++ {
			k := i*n + j
			l := s.curr[k-1][1]
			r := s.curr[k+1][1]
			t := s.curr[k-n][1]
			b := s.curr[k+n][1]
			s.normals[k] = mgl32.Vec3{-r + l, 2 * s.dx, b - t}.Normalize()
			s.tangents[k] = mgl32.Vec3{2 * s.dx, r - l, 0}.Normalize()
		}
	}
	return true
}

// Disturb raises cell (i,j) by magnitude and its four neighbours by half
// of it.
func (s *Simulation) Disturb(i, j int, magnitude float32) error {
	if i <= 1 || i >= s.rows-2 || j <= 1 || j >= s.cols-2 {
		return fmt.Errorf("%w: (%d,%d) in %dx%d grid", ErrOutOfBounds, i, j, s.rows, s.cols)
	}
	half := 0.5 * magnitude
	k := i*s.cols + j
	s.curr[k][1] += magnitude
	s.curr[k+1][1] += half
	s.curr[k-1][1] += half
	s.curr[k+s.cols][1] += half
	s.curr[k-s.cols][1] += half
	return nil
}

// Tick drops the periodic random disturbances due in dt and then updates
// the solution.
func (s *Simulation) Tick(dt float32) error {
	if s.cfg.DisturbInterval > 0 {
		s.sinceDisturb += dt
		for s.sinceDisturb >= s.cfg.DisturbInterval {
			s.sinceDisturb -= s.cfg.DisturbInterval
			i := DisturbMargin + s.rng.Intn(s.rows-5-DisturbMargin+1)
			j := DisturbMargin + s.rng.Intn(s.cols-5-DisturbMargin+1)
			mag := s.cfg.MinMagnitude + s.rng.Float32()*(s.cfg.MaxMagnitude-s.cfg.MinMagnitude)
			if err := s.Disturb(i, j, mag); err != nil {
				return err
			}
		}
	}
	s.Update(dt)
	return nil
}

// FillVertices writes the current surface into dst, deriving texture
// coordinates from the position so [-w/2,w/2] maps to [0,1].
func (s *Simulation) FillVertices(dst []renderer.Vertex) {
	w, d := s.Width(), s.Depth()
	for i := range dst {
		if i >= len(s.curr) {
			return
		}
		p := s.curr[i]
		dst[i] = renderer.Vertex{
			Pos:      p,
			Normal:   s.normals[i],
			TangentU: s.tangents[i],
			TexC:     mgl32.Vec2{0.5 + p[0]/w, 0.5 - p[2]/d},
		}
	}
}

func (s *Simulation) Indices() []uint32 {
	return renderer.GridIndices(s.rows, s.cols)
}

// Bounds encloses the surface with headroom for the wave crests.
func (s *Simulation) Bounds() renderer.BoundingSphere {
	hw, hd := s.Width()/2, s.Depth()/2
	return renderer.BoundingSphere{Radius: mgl32.Vec3{hw, 2 * s.cfg.MaxMagnitude, hd}.Len()}
}

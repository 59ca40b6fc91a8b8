package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ShadowTerrain/internal/logger"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	BackendOpenGL   = "opengl"
	BackendHeadless = "headless"

	SourcePerlin = "perlin"
	SourceRaw    = "raw"
	SourceImage  = "image"
)

// Config is the full runtime configuration. Every section has JSON and
// YAML tags so either file format can be used.
type Config struct {
	Backend       string         `json:"backend" yaml:"backend"`
	FrameDepth    int            `json:"frameDepth" yaml:"frameDepth"`
	ShadowMapSize int            `json:"shadowMapSize" yaml:"shadowMapSize"`
	Window        WindowConfig   `json:"window" yaml:"window"`
	Terrain       TerrainConfig  `json:"terrain" yaml:"terrain"`
	Waves         WavesConfig    `json:"waves" yaml:"waves"`
	Camera        CameraConfig   `json:"camera" yaml:"camera"`
	Headless      HeadlessConfig `json:"headless" yaml:"headless"`
	Log           logger.Config  `json:"log" yaml:"log"`
}

type WindowConfig struct {
	Title  string `json:"title" yaml:"title"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	X      int    `json:"x" yaml:"x"`
	Y      int    `json:"y" yaml:"y"`
	VSync  bool   `json:"vsync" yaml:"vsync"`
}

type TerrainConfig struct {
	Source      string  `json:"source" yaml:"source"` // perlin, raw or image
	Path        string  `json:"path,omitempty" yaml:"path,omitempty"`
	Rows        int     `json:"rows" yaml:"rows"`
	Cols        int     `json:"cols" yaml:"cols"`
	Width       float32 `json:"width" yaml:"width"`
	Depth       float32 `json:"depth" yaml:"depth"`
	HeightScale float32 `json:"heightScale" yaml:"heightScale"`
	Seed        int64   `json:"seed" yaml:"seed"`
	Octaves     int     `json:"octaves" yaml:"octaves"`
	Frequency   float64 `json:"frequency" yaml:"frequency"`
	// BoundsMargin is added to the half diagonal of the terrain footprint
	// to get the scene bounding sphere radius.
	BoundsMargin float32 `json:"boundsMargin" yaml:"boundsMargin"`
}

type WavesConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Rows        int     `json:"rows" yaml:"rows"`
	Cols        int     `json:"cols" yaml:"cols"`
	SpatialStep float32 `json:"spatialStep" yaml:"spatialStep"`
	TimeStep    float32 `json:"timeStep" yaml:"timeStep"`
	Speed       float32 `json:"speed" yaml:"speed"`
	Damping     float32 `json:"damping" yaml:"damping"`
	Height      float32 `json:"height" yaml:"height"`
	Seed        int64   `json:"seed" yaml:"seed"`
}

type CameraConfig struct {
	Position [3]float32 `json:"position" yaml:"position"`
	Target   [3]float32 `json:"target" yaml:"target"`
	Speed    float32    `json:"speed" yaml:"speed"`
	FovY     float32    `json:"fovY" yaml:"fovY"` // degrees
	Near     float32    `json:"near" yaml:"near"`
	Far      float32    `json:"far" yaml:"far"`
}

type HeadlessConfig struct {
	Frames     int           `json:"frames" yaml:"frames"`
	GPULatency time.Duration `json:"gpuLatency" yaml:"gpuLatency"`
	DeltaTime  float32       `json:"deltaTime" yaml:"deltaTime"`
}

// Default returns the settings the terrain shadow demo ships with.
func Default() Config {
	return Config{
		Backend:       BackendOpenGL,
		FrameDepth:    3,
		ShadowMapSize: 2048,
		Window: WindowConfig{
			Title:  "ShadowTerrain",
			Width:  1280,
			Height: 720,
			X:      100,
			Y:      100,
			VSync:  true,
		},
		Terrain: TerrainConfig{
			Source:       SourcePerlin,
			Rows:         257,
			Cols:         257,
			Width:        500,
			Depth:        500,
			HeightScale:  1,
			Seed:         7,
			Octaves:      5,
			Frequency:    3,
			BoundsMargin: 2,
		},
		Waves: WavesConfig{
			Enabled:     true,
			Rows:        500,
			Cols:        128,
			SpatialStep: 1,
			TimeStep:    0.03,
			Speed:       4,
			Damping:     0.2,
			Height:      93,
			Seed:        11,
		},
		Camera: CameraConfig{
			Position: [3]float32{200, 200, 0},
			Target:   [3]float32{0, 0, 0},
			Speed:    60,
			FovY:     45,
			Near:     1,
			Far:      1000,
		},
		Headless: HeadlessConfig{
			Frames:     300,
			GPULatency: 2 * time.Millisecond,
			DeltaTime:  1.0 / 60.0,
		},
		Log: logger.Config{Level: "info"},
	}
}

// Load reads a JSON or YAML config file on top of Default(). The format
// is picked from the file extension.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: unsupported config extension %q", ErrInvalidConfig, filepath.Ext(path))
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Save writes the config as indented JSON.
func Save(cfg Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	invalid := func(format string, args ...interface{}) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...))
	}

	if c.Backend != BackendOpenGL && c.Backend != BackendHeadless {
		invalid("unknown backend %q", c.Backend)
	}
	if c.FrameDepth < 1 {
		invalid("frameDepth must be at least 1, got %d", c.FrameDepth)
	}
	if c.ShadowMapSize <= 0 {
		invalid("shadowMapSize must be positive, got %d", c.ShadowMapSize)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		invalid("window size %dx%d", c.Window.Width, c.Window.Height)
	}

	t := c.Terrain
	switch t.Source {
	case SourcePerlin:
		if t.Rows < 2 || t.Cols < 2 {
			invalid("terrain grid %dx%d is too small", t.Rows, t.Cols)
		}
	case SourceRaw, SourceImage:
		if t.Path == "" {
			invalid("terrain source %q needs a path", t.Source)
		}
	default:
		invalid("unknown terrain source %q", t.Source)
	}
	if t.Width <= 0 || t.Depth <= 0 {
		invalid("terrain extents %vx%v", t.Width, t.Depth)
	}

	if c.Waves.Enabled {
		w := c.Waves
		if w.Rows < 16 || w.Cols < 16 {
			invalid("waves grid %dx%d is too small", w.Rows, w.Cols)
		}
		if w.SpatialStep <= 0 || w.TimeStep <= 0 {
			invalid("waves steps must be positive")
		}
		// Stability bound of the finite difference scheme.
		if w.Speed*w.TimeStep/w.SpatialStep >= 1 || w.Speed*w.Speed*w.TimeStep*w.TimeStep/(w.SpatialStep*w.SpatialStep) >= 0.5 {
			invalid("waves speed %v is unstable for dt=%v dx=%v", w.Speed, w.TimeStep, w.SpatialStep)
		}
	}

	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		invalid("camera clip planes near=%v far=%v", c.Camera.Near, c.Camera.Far)
	}
	if c.Backend == BackendHeadless && c.Headless.Frames < 0 {
		invalid("headless frames must not be negative")
	}
	return err
}

package loader

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"ShadowTerrain/internal/config"
	"ShadowTerrain/internal/logger"
	"ShadowTerrain/internal/renderer"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

var ErrHeightmapSize = errors.New("heightmap size mismatch")

// LoadRaw reads an 8-bit RAW heightmap, one byte per sample in row-major
// order. With rows and cols zero the map must be square.
func LoadRaw(path string, rows, cols int) (renderer.HeightGrid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return renderer.HeightGrid{}, fmt.Errorf("read heightmap %s: %w", path, err)
	}

	if rows == 0 && cols == 0 {
		side := int(math.Sqrt(float64(len(data))))
		if side*side != len(data) {
			return renderer.HeightGrid{}, fmt.Errorf("%w: %s has %d bytes, not a square map", ErrHeightmapSize, path, len(data))
		}
		rows, cols = side, side
	}
	if rows*cols != len(data) {
		return renderer.HeightGrid{}, fmt.Errorf("%w: %s has %d bytes, want %dx%d", ErrHeightmapSize, path, len(data), rows, cols)
	}

	grid := renderer.HeightGrid{Rows: rows, Cols: cols, Samples: make([]float32, len(data))}
	for i, b := range data {
		grid.Samples[i] = float32(b)
	}
	logger.Log.Info("RAW heightmap loaded", zap.String("path", path), zap.Int("rows", rows), zap.Int("cols", cols))
	return grid, nil
}

// LoadImage reads a PNG or JPEG heightmap through its luminance, scaled to
// 0..255. With rows and cols non-zero the image is resampled first.
func LoadImage(path string, rows, cols int) (renderer.HeightGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return renderer.HeightGrid{}, fmt.Errorf("open heightmap %s: %w", path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return renderer.HeightGrid{}, fmt.Errorf("decode heightmap %s: %w", path, err)
	}
	grid := GridFromImage(img, rows, cols)
	logger.Log.Info("Image heightmap loaded",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("rows", grid.Rows),
		zap.Int("cols", grid.Cols))
	return grid, nil
}

// GridFromImage converts an image to a height grid, one sample per pixel
// after an optional bilinear resample to rows x cols.
func GridFromImage(img image.Image, rows, cols int) renderer.HeightGrid {
	b := img.Bounds()
	if rows > 0 && cols > 0 && (rows != b.Dy() || cols != b.Dx()) {
		dst := image.NewGray(image.Rect(0, 0, cols, rows))
		draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img, b = dst, dst.Bounds()
	}

	grid := renderer.HeightGrid{Rows: b.Dy(), Cols: b.Dx(), Samples: make([]float32, b.Dx()*b.Dy())}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			grid.Samples[(y-b.Min.Y)*grid.Cols+(x-b.Min.X)] = float32(g.Y)
		}
	}
	return grid
}

type PerlinOptions struct {
	Rows, Cols int
	Seed       int64
	Octaves    int
	Frequency  float64 // noise periods across the grid
	MaxHeight  float32
	// Valley lowers a band along z through the middle of the grid by this
	// fraction so a river fits in it. Zero leaves the noise untouched.
	Valley float64
}

// GeneratePerlin builds a fractal noise heightmap in [0, MaxHeight].
func GeneratePerlin(opts PerlinOptions) (renderer.HeightGrid, error) {
	if opts.Rows < 2 || opts.Cols < 2 {
		return renderer.HeightGrid{}, fmt.Errorf("%w: perlin grid %dx%d", ErrHeightmapSize, opts.Rows, opts.Cols)
	}
	octaves := opts.Octaves
	if octaves <= 0 {
		octaves = 4
	}
	freq := opts.Frequency
	if freq <= 0 {
		freq = 1
	}

	p := perlin.NewPerlin(2, 2, int32(octaves), opts.Seed)
	grid := renderer.HeightGrid{Rows: opts.Rows, Cols: opts.Cols, Samples: make([]float32, opts.Rows*opts.Cols)}
	for r := 0; r < opts.Rows; r++ {
		v := float64(r) / float64(opts.Rows-1)
		for c := 0; c < opts.Cols; c++ {
			u := float64(c) / float64(opts.Cols-1)
			n := p.Noise2D(u*freq, v*freq)
			h := clamp01(n*0.5+0.5) * valleyFactor(u, opts.Valley)
			grid.Samples[r*opts.Cols+c] = float32(h) * opts.MaxHeight
		}
	}
	return grid, nil
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// valleyFactor dips smoothly around the middle column band.
func valleyFactor(u, depth float64) float64 {
	if depth <= 0 {
		return 1
	}
	d := (u - 0.5) / 0.08
	return 1 - depth*math.Exp(-d*d)
}

// Load picks the heightmap source named by the terrain config.
func Load(cfg config.TerrainConfig) (renderer.HeightGrid, error) {
	switch cfg.Source {
	case config.SourceRaw:
		return LoadRaw(cfg.Path, cfg.Rows, cfg.Cols)
	case config.SourceImage:
		return LoadImage(cfg.Path, cfg.Rows, cfg.Cols)
	case config.SourcePerlin:
		return GeneratePerlin(PerlinOptions{
			Rows:      cfg.Rows,
			Cols:      cfg.Cols,
			Seed:      cfg.Seed,
			Octaves:   cfg.Octaves,
			Frequency: cfg.Frequency,
			MaxHeight: 255,
			Valley:    0.7,
		})
	}
	return renderer.HeightGrid{}, fmt.Errorf("%w: unknown terrain source %q", config.ErrInvalidConfig, cfg.Source)
}

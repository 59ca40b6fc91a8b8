package scene

import (
	"image"
	"image/color"

	"github.com/aquilax/go-perlin"
)

const textureSize = 128

// Diffuse texture table order. Material DiffuseMapIndex values point into
// it.
const (
	TexGround = iota
	TexGrass
	TexRoad
	TexWaterBottom
	TexWater
	TexSky
	TextureCount
)

var textureNames = [TextureCount]string{"groundTex", "grassTex", "roadTex", "waterBottomTex", "waterTex", "skyTex"}

type texturePalette struct {
	dark, light color.RGBA
	frequency   float64
}

var palettes = [TextureCount]texturePalette{
	TexGround:      {color.RGBA{94, 74, 52, 255}, color.RGBA{150, 124, 92, 255}, 8},
	TexGrass:       {color.RGBA{38, 84, 30, 255}, color.RGBA{98, 150, 60, 255}, 16},
	TexRoad:        {color.RGBA{72, 70, 68, 255}, color.RGBA{128, 124, 118, 255}, 24},
	TexWaterBottom: {color.RGBA{88, 80, 60, 255}, color.RGBA{140, 130, 100, 255}, 6},
	TexWater:       {color.RGBA{20, 60, 110, 255}, color.RGBA{70, 130, 180, 255}, 4},
	TexSky:         {color.RGBA{110, 150, 210, 255}, color.RGBA{225, 235, 250, 255}, 2},
}

// GenerateTextures paints one tileable noise texture per terrain
// material.
func GenerateTextures(seed int64) []image.Image {
	out := make([]image.Image, TextureCount)
	for i, p := range palettes {
		out[i] = noiseTexture(p, seed+int64(i))
	}
	return out
}

func noiseTexture(p texturePalette, seed int64) *image.RGBA {
	noise := perlin.NewPerlin(2, 2, 3, seed)
	img := image.NewRGBA(image.Rect(0, 0, textureSize, textureSize))
	for y := 0; y < textureSize; y++ {
		for x := 0; x < textureSize; x++ {
			n := noise.Noise2D(float64(x)/textureSize*p.frequency, float64(y)/textureSize*p.frequency)
			t := n*0.5 + 0.5
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
			img.SetRGBA(x, y, lerpColor(p.dark, p.light, t))
		}
	}
	return img
}

func lerpColor(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t)
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}

package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// composite blends the denoised reflections over the G-buffer albedo.
// Smooth surfaces show more of the reflection.
func composite(g *gbuffer, reflections []float32) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.width, g.height))
	for i := 0; i < g.width*g.height; i++ {
		c := g.albedo[i]
		if g.depth[i] < 1 && (i+1)*4 <= len(reflections) {
			r := mgl32.Vec3{reflections[i*4], reflections[i*4+1], reflections[i*4+2]}
			k := 1 - mgl32.Clamp(g.normals[i*4+3], 0, 1)
			c = c.Mul(0.35).Add(r.Mul(k))
		}
		o := i * 4
		img.Pix[o] = toSRGB8(c[0])
		img.Pix[o+1] = toSRGB8(c[1])
		img.Pix[o+2] = toSRGB8(c[2])
		img.Pix[o+3] = 0xff
	}
	return img
}

// toSRGB8 tone maps a linear channel with Reinhard and applies gamma 2.2.
func toSRGB8(v float32) uint8 {
	if v <= 0 || math.IsNaN(float64(v)) {
		return 0
	}
	mapped := float64(v / (1 + v))
	return uint8(math.Round(math.Pow(mapped, 1/2.2) * 255))
}

// rescale resizes img by factor with Catmull-Rom filtering. A factor of 1
// returns img unchanged.
func rescale(img image.Image, factor float64) (image.Image, error) {
	if factor == 1 {
		return img, nil
	}
	if factor <= 0 || math.IsNaN(factor) {
		return nil, fmt.Errorf("invalid scale %v", factor)
	}
	b := img.Bounds()
	w := max(int(math.Round(float64(b.Dx())*factor)), 1)
	h := max(int(math.Round(float64(b.Dy())*factor)), 1)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst, nil
}

// drawCaption writes text in the bottom left corner of img.
func drawCaption(img xdraw.Image, text string) error {
	if text == "" {
		return nil
	}
	parsed, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    14,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return fmt.Errorf("create font face: %w", err)
	}
	defer func() {
		_ = face.Close()
	}()

	b := img.Bounds()
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(b.Min.X+8, b.Max.Y-8),
	}
	drawer.DrawString(text)
	return nil
}

// savePNG writes img to path.
func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

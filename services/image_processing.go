package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
)

// WhitenBackgroundFeathered pushes the bright backdrop of a generated
// garment image to pure white so looks render on a clean card in the app.
// Pixels between the two thresholds blend linearly towards white instead of
// snapping, and a centered window covering the garment itself is left
// untouched. Thresholds are luminance values in 0-255; protectRatio is the
// fraction of each dimension to protect around the center.
func WhitenBackgroundFeathered(imageBytes []byte, lowerThreshold, upperThreshold uint8, protectRatio float64) ([]byte, error) {
	if lowerThreshold >= upperThreshold {
		return nil, fmt.Errorf("lowerThreshold must be less than upperThreshold")
	}
	if protectRatio < 0.0 || protectRatio > 1.0 {
		return nil, fmt.Errorf("protectRatio must be between 0.0 and 1.0")
	}

	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Max.X, bounds.Max.Y
	out := image.NewRGBA(bounds)

	// the garment window in the middle of the frame
	protectedWidth := int(float64(width) * protectRatio)
	protectedHeight := int(float64(height) * protectRatio)
	x0 := (width - protectedWidth) / 2
	y0 := (height - protectedHeight) / 2
	x1 := x0 + protectedWidth
	y1 := y0 + protectedHeight

	transitionRange := float64(upperThreshold - lowerThreshold)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			original := img.At(x, y)
			if x >= x0 && x < x1 && y >= y0 && y < y1 {
				out.Set(x, y, original)
				continue
			}

			r, g, b, a := original.RGBA()
			r8 := uint8(r >> 8)
			g8 := uint8(g >> 8)
			b8 := uint8(b >> 8)
			a8 := uint8(a >> 8)

			luminance := 0.299*float64(r8) + 0.587*float64(g8) + 0.114*float64(b8)

			switch {
			case luminance <= float64(lowerThreshold):
				// dark enough to be garment spillover, keep it
				out.Set(x, y, original)
			case luminance >= float64(upperThreshold):
				out.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: a8})
			default:
				// feather zone: interpolate each channel towards white
				blend := (luminance - float64(lowerThreshold)) / transitionRange
				newR := uint8(math.Round(float64(r8)*(1.0-blend) + 255.0*blend))
				newG := uint8(math.Round(float64(g8)*(1.0-blend) + 255.0*blend))
				newB := uint8(math.Round(float64(b8)*(1.0-blend) + 255.0*blend))
				out.Set(x, y, color.RGBA{R: newR, G: newG, B: newB, A: a8})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode image to png: %w", err)
	}
	return buf.Bytes(), nil
}

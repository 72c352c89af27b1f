package domain

import (
	"bytes"
	"fmt"
	"image"
	"math"

	// Registered so ImageSize understands the formats the sandbox produces.
	_ "image/jpeg"
	_ "image/png"
)

// NormalizedPoint is a position relative to a screenshot, with both
// components in [0,1].
type NormalizedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both components lie in [0,1].
func (p NormalizedPoint) Valid() bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1 &&
		!math.IsNaN(p.X) && !math.IsNaN(p.Y)
}

// ToPixels converts p to an absolute point on an image of the given size.
// The size must come from the same screenshot the point was located on.
func (p NormalizedPoint) ToPixels(width, height int) Point {
	return Point{
		X: int(math.Round(p.X * float64(width))),
		Y: int(math.Round(p.Y * float64(height))),
	}
}

// ToScreen converts p like ToPixels, then clamps the result to the last
// addressable pixel so that answers on the right or bottom edge stay on the
// display.
func (p NormalizedPoint) ToScreen(width, height int) Point {
	px := p.ToPixels(width, height)
	px.X = min(max(px.X, 0), max(width-1, 0))
	px.Y = min(max(px.Y, 0), max(height-1, 0))
	return px
}

func (p NormalizedPoint) String() string {
	return fmt.Sprintf("[%.4f, %.4f]", p.X, p.Y)
}

// ImageSize returns the dimensions of an encoded PNG or JPEG image by reading
// its header.
func ImageSize(img []byte) (width, height int, err error) {
	if len(img) == 0 {
		return 0, 0, fmt.Errorf("empty image")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return 0, 0, fmt.Errorf("decoding image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

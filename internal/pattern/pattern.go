package pattern

import (
	"image"
	"image/color"
)

// Generator renders a synthetic moving test card so the viewer pipeline can
// be exercised without a physical camera: a diagonal gradient backdrop, a
// sweeping vertical bar, and a sequence-keyed corner block that makes frame
// progression visible.
type Generator struct {
	width  int
	height int
}

// NewGenerator creates a generator for width x height frames.
func NewGenerator(width, height int) *Generator {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &Generator{width: width, height: height}
}

// Frame renders the test card for the given sequence number. The output is
// deterministic per sequence.
func (g *Generator) Frame(seq int64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.width, g.height))

	barX := int(seq*4) % g.width
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			c := color.RGBA{
				R: uint8((x * 255) / g.width),
				G: uint8((y * 255) / g.height),
				B: uint8(((x + y + int(seq)) * 255) / (g.width + g.height)),
				A: 0xff,
			}
			if abs(x-barX) < 8 {
				c = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			img.SetRGBA(x, y, c)
		}
	}

	// Sequence block: a 32px square whose shade steps with the sequence.
	shade := uint8((seq * 16) % 256)
	for y := 0; y < 32 && y < g.height; y++ {
		for x := 0; x < 32 && x < g.width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 0xff})
		}
	}

	return img
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

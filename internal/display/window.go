package display

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

// Waiting reports whether the stream is still waiting for its first frame;
// the window shows a loading hint while it returns true.
type Waiting func() bool

// Window renders a camera stream using Ebitengine. It is the render
// pipeline's paint surface: Paint is called from the render loop goroutine
// with the latest decoded frame, and Draw blits it at the display's own
// refresh cadence.
type Window struct {
	mu      sync.Mutex
	frame   *image.RGBA
	tex     *ebiten.Image
	surfW   int
	surfH   int
	title   string
	waiting Waiting
}

// NewWindow creates a window titled after the camera. waiting, if non-nil,
// drives the loading hint shown before the first frame lands.
func NewWindow(title string, waiting Waiting) *Window {
	return &Window{
		title:   title,
		waiting: waiting,
		surfW:   1280,
		surfH:   720,
	}
}

// Size returns the surface's current intrinsic dimensions.
func (w *Window) Size() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.surfW, w.surfH
}

// Resize adopts new intrinsic dimensions. The render loop calls it only
// when the decoded frame's dimensions actually changed.
func (w *Window) Resize(width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.surfW = width
	w.surfH = height
}

// Paint installs the latest decoded frame (called from the render loop
// goroutine).
func (w *Window) Paint(img *image.RGBA) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frame = img
}

// Blank drops the displayed frame, returning the window to its waiting
// state after a disconnect.
func (w *Window) Blank() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frame = nil
}

// Run starts the Ebitengine game loop. Must be called from the main
// goroutine.
func (w *Window) Run() error {
	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowTitle(w.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(w)
}

// --- ebiten.Game interface ---

func (w *Window) Update() error {
	return nil
}

func (w *Window) Draw(screen *ebiten.Image) {
	w.mu.Lock()
	frame := w.frame
	w.mu.Unlock()

	if frame == nil {
		screen.Fill(color.RGBA{R: 0x10, G: 0x10, B: 0x14, A: 0xff})
		if w.waiting != nil && w.waiting() {
			ebitenutil.DebugPrint(screen, "waiting for stream...")
		}
		return
	}

	if w.tex == nil ||
		w.tex.Bounds().Dx() != frame.Bounds().Dx() ||
		w.tex.Bounds().Dy() != frame.Bounds().Dy() {
		w.tex = ebiten.NewImage(frame.Bounds().Dx(), frame.Bounds().Dy())
	}
	w.tex.WritePixels(frame.Pix)

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	fw, fh := float64(frame.Bounds().Dx()), float64(frame.Bounds().Dy())
	scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), fw, fh)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(offsetX, offsetY)
	screen.DrawImage(w.tex, op)
}

func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}

package stream

import (
	"image"
	"sync"
	"time"
)

// Surface is the paint target for the render loop. The Ebitengine window
// implements it; tests use an in-memory fake.
type Surface interface {
	Size() (int, int)
	Resize(w, h int)
	Paint(img *image.RGBA)
}

// DefaultRenderInterval approximates a 60Hz display refresh.
const DefaultRenderInterval = 16 * time.Millisecond

// RenderLoop repaints the surface at its own cadence, decoupled from frame
// arrival. Each cycle paints the current resource if its readiness predicate
// holds, and reschedules unconditionally so a frame arriving between cycles
// is picked up on the next one.
type RenderLoop struct {
	surface   Surface
	resources *ResourceManager
	interval  time.Duration

	mu           sync.Mutex
	stop         chan struct{}
	wg           sync.WaitGroup
	waitingFirst bool
	onFirstFrame func()
}

// NewRenderLoop wires a loop to its surface and resource slot. onFirstFrame,
// if non-nil, fires once per activation when the first paint lands; it
// drives the hosting view's loading indicator.
func NewRenderLoop(surface Surface, resources *ResourceManager, interval time.Duration, onFirstFrame func()) *RenderLoop {
	if interval <= 0 {
		interval = DefaultRenderInterval
	}
	return &RenderLoop{
		surface:      surface,
		resources:    resources,
		interval:     interval,
		waitingFirst: true,
		onFirstFrame: onFirstFrame,
	}
}

// Start begins the repaint cycle. The waiting-for-first-frame flag resets so
// a reconnect shows the loading state again. Calling Start on a running loop
// is a no-op.
func (l *RenderLoop) Start() {
	l.mu.Lock()
	if l.stop != nil {
		l.mu.Unlock()
		return
	}
	l.waitingFirst = true
	stop := make(chan struct{})
	l.stop = stop
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				l.renderOnce()
			}
		}
	}()
}

// Stop cancels the cycle and waits for the in-flight tick to finish, so no
// paint executes against a torn-down surface after Stop returns.
func (l *RenderLoop) Stop() {
	l.mu.Lock()
	stop := l.stop
	l.stop = nil
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	l.wg.Wait()
}

// WaitingFirstFrame reports whether no frame has been painted since the
// loop last started.
func (l *RenderLoop) WaitingFirstFrame() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waitingFirst
}

// renderOnce runs a single paint cycle: skip unless the current resource is
// ready and non-empty, resize the surface only when dimensions differ, then
// paint.
func (l *RenderLoop) renderOnce() {
	res := l.resources.Current()
	if res == nil || !res.Ready() {
		return
	}
	img := res.Image()
	if img == nil {
		return
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w == 0 || h == 0 {
		return
	}

	if sw, sh := l.surface.Size(); sw != w || sh != h {
		l.surface.Resize(w, h)
	}
	l.surface.Paint(img)

	l.mu.Lock()
	first := l.waitingFirst
	l.waitingFirst = false
	cb := l.onFirstFrame
	l.mu.Unlock()
	if first && cb != nil {
		cb()
	}
}

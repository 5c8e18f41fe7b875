package stream

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// FrameHandler receives frame samples from a channel subscription. The
// channel may be shared across cameras; handlers filter by camera ID.
type FrameHandler func(FrameSample)

// CancelFunc tears down a subscription. The pipeline guarantees it is
// invoked exactly once during the active→idle transition.
type CancelFunc func()

// FrameChannel is the external push channel delivering encoded frames.
type FrameChannel interface {
	SubscribeFrames(cameraID string, h FrameHandler) (CancelFunc, error)
}

// RTTChannel delivers round-trip update ticks and answers synchronous
// statistic lookups.
type RTTChannel interface {
	RTTSource
	SubscribeRTT(cameraID string, h func()) (CancelFunc, error)
}

// Callbacks are the pipeline's outward surface to the hosting view. Both
// are optional; OnError is non-fatal and never stops the pipeline.
type Callbacks struct {
	OnError   func(msg string)
	OnMetrics func(m StreamMetrics)
}

// Options tune the pipeline. Zero values pick the defaults.
type Options struct {
	Decoder         Decoder
	RenderInterval  time.Duration
	MetricsThrottle time.Duration
}

// Pipeline drives one camera view through its connect/stream/disconnect
// lifecycle: it owns the decoder, the current decoded resource, the render
// loop and the metrics aggregator, and mediates all channel subscriptions.
// It is a two-state machine; SetConnected moves it between idle and active.
type Pipeline struct {
	cameraID string
	surface  Surface
	frames   FrameChannel
	rtt      RTTChannel
	decoder  Decoder
	cbs      Callbacks

	resources *ResourceManager
	loop      *RenderLoop
	metrics   *Aggregator

	mu           sync.Mutex
	active       bool
	cancelFrames CancelFunc
	cancelRTT    CancelFunc
}

// NewPipeline assembles an idle pipeline for one camera view.
func NewPipeline(cameraID string, surface Surface, frames FrameChannel, rtt RTTChannel, cbs Callbacks, opts Options) *Pipeline {
	dec := opts.Decoder
	if dec == nil {
		dec = NewJPEGDecoder()
	}
	p := &Pipeline{
		cameraID:  cameraID,
		surface:   surface,
		frames:    frames,
		rtt:       rtt,
		decoder:   dec,
		cbs:       cbs,
		resources: NewResourceManager(),
	}
	p.loop = NewRenderLoop(surface, p.resources, opts.RenderInterval, nil)
	p.metrics = NewAggregator(cameraID, rtt, p.emitMetrics, opts.MetricsThrottle)
	return p
}

// SetConnected drives the idle↔active transitions. Connecting twice or
// disconnecting twice is a no-op. A subscription failure on connect rolls
// the pipeline back to idle and is returned to the caller.
func (p *Pipeline) SetConnected(connected bool) error {
	if connected {
		return p.activate()
	}
	p.deactivate()
	return nil
}

// Close performs the full active→idle teardown. Safe to call on an idle
// pipeline, and safe to call more than once.
func (p *Pipeline) Close() {
	p.deactivate()
}

// WaitingFirstFrame reports whether no frame has been painted since the
// current activation; the hosting view shows its loading indicator while
// this is true.
func (p *Pipeline) WaitingFirstFrame() bool {
	return p.loop.WaitingFirstFrame()
}

func (p *Pipeline) activate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return nil
	}

	p.resources.Reopen()
	p.metrics.Start()
	p.loop.Start()

	cancelFrames, err := p.frames.SubscribeFrames(p.cameraID, p.handleFrame)
	if err != nil {
		p.loop.Stop()
		p.metrics.Halt()
		return fmt.Errorf("subscribe frames %s: %w", p.cameraID, err)
	}
	p.cancelFrames = cancelFrames

	if p.rtt != nil {
		cancelRTT, err := p.rtt.SubscribeRTT(p.cameraID, func() {})
		if err != nil {
			cancelFrames()
			p.cancelFrames = nil
			p.loop.Stop()
			p.metrics.Halt()
			return fmt.Errorf("subscribe rtt %s: %w", p.cameraID, err)
		}
		p.cancelRTT = cancelRTT
	}

	p.active = true
	return nil
}

// deactivate cancels the render loop, unsubscribes both channels, releases
// the current resource and emits the final zeroed snapshot — synchronously,
// so no post-teardown callback mutates state.
func (p *Pipeline) deactivate() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	cancelFrames := p.cancelFrames
	cancelRTT := p.cancelRTT
	p.cancelFrames = nil
	p.cancelRTT = nil
	p.mu.Unlock()

	p.loop.Stop()
	if cancelFrames != nil {
		cancelFrames()
	}
	if cancelRTT != nil {
		cancelRTT()
	}
	p.resources.ReleaseAll()
	p.metrics.Halt()
}

// handleFrame runs on the channel's delivery goroutine. It installs a
// loading resource immediately and decodes in the background; a frame
// arriving mid-decode simply supersedes the pending one. Errors never
// propagate across the subscription boundary.
func (p *Pipeline) handleFrame(s FrameSample) {
	defer func() {
		if r := recover(); r != nil {
			p.reportError(fmt.Sprintf("process frame: %v", r))
		}
	}()

	if s.CameraID != p.cameraID {
		return
	}
	if len(s.Payload) == 0 {
		p.reportError("empty frame payload")
		return
	}

	res := NewLoadingResource(nil)
	p.resources.Install(res)
	go p.decodeInto(res, s.Payload)

	p.metrics.Record(s)
}

// decodeInto completes res with the decoded pixels, or revokes it on
// failure. A stale decode completing after its resource was superseded is
// harmless: the handle was already released and discards the pixels.
func (p *Pipeline) decodeInto(res *DecodedResource, payload []byte) {
	img, err := p.decoder.Decode(payload)
	if err != nil {
		res.Release()
		p.reportError(fmt.Sprintf("decode frame: %v", err))
		return
	}
	res.Complete(img)
}

func (p *Pipeline) reportError(msg string) {
	if p.cbs.OnError != nil {
		p.cbs.OnError(msg)
		return
	}
	log.Printf("stream %s: %s", p.cameraID, msg)
}

func (p *Pipeline) emitMetrics(m StreamMetrics) {
	if p.cbs.OnMetrics != nil {
		p.cbs.OnMetrics(m)
	}
}

package stream

import (
	"sync"
	"time"
)

// RTTSource answers synchronous round-trip lookups by camera ID. The feed
// client implements it from its locally cached rtt-update messages.
type RTTSource interface {
	RTTInfo(cameraID string) (RTTInfo, bool)
}

// DefaultThrottle is the minimum interval between outward metric emissions.
const DefaultThrottle = time.Second

// Aggregator accumulates per-frame timing samples and notifies the hosting
// view at most once per throttle window. A periodic ticker re-emits the
// latest stored sample when the producer pauses, so displayed numbers do not
// go stale. Halt delivers one final zeroed snapshot so downstream UI cannot
// keep showing numbers from a dead stream.
type Aggregator struct {
	cameraID string
	rtt      RTTSource
	emit     func(StreamMetrics)
	throttle time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastEmit  time.Time
	latest    StreamMetrics
	hasLatest bool
	sumFPS    float64
	sumLat    float64
	samples   int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewAggregator builds an aggregator for one camera. rtt may be nil when no
// round-trip source exists; emit must not be nil.
func NewAggregator(cameraID string, rtt RTTSource, emit func(StreamMetrics), throttle time.Duration) *Aggregator {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Aggregator{
		cameraID: cameraID,
		rtt:      rtt,
		emit:     emit,
		throttle: throttle,
		now:      time.Now,
	}
}

// Start resets accumulated state and begins the stale-guard ticker. The
// emission timer starts at zero so the first recorded sample emits
// immediately.
func (a *Aggregator) Start() {
	a.mu.Lock()
	if a.stop != nil {
		a.mu.Unlock()
		return
	}
	a.lastEmit = time.Time{}
	a.latest = StreamMetrics{}
	a.hasLatest = false
	a.sumFPS, a.sumLat, a.samples = 0, 0, 0
	stop := make(chan struct{})
	a.stop = stop
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.throttle)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				a.tick()
			}
		}
	}()
}

// Record stores the sample as latest unconditionally, merging in the current
// RTT statistics, then emits if the throttle window has elapsed.
func (a *Aggregator) Record(s FrameSample) {
	a.mu.Lock()
	if a.stop == nil {
		// Halted: a sample racing teardown must not emit after the final
		// snapshot.
		a.mu.Unlock()
		return
	}
	a.samples++
	a.sumFPS += s.FPS
	a.sumLat += s.LatencyMS

	m := StreamMetrics{
		FPS:         s.FPS,
		LatencyMS:   s.LatencyMS,
		IsStreaming: true,
		LatencyKind: s.LatencyKind,
		AvgFPS:      a.sumFPS / float64(a.samples),
		AvgLatency:  a.sumLat / float64(a.samples),
		HealthScore: s.HealthScore,
	}
	if a.rtt != nil {
		if info, ok := a.rtt.RTTInfo(a.cameraID); ok {
			m.RTT = info.Current
			m.AvgRTT = info.Average
			m.MinRTT = info.Min
			m.MaxRTT = info.Max
		}
	}
	a.latest = m
	a.hasLatest = true

	now := a.now()
	var out *StreamMetrics
	if now.Sub(a.lastEmit) >= a.throttle {
		a.lastEmit = now
		cp := m
		out = &cp
	}
	a.mu.Unlock()

	if out != nil {
		a.emit(*out)
	}
}

// tick re-emits the latest stored sample when a full throttle window passed
// without an emission, covering producer pauses.
func (a *Aggregator) tick() {
	a.mu.Lock()
	if !a.hasLatest || a.now().Sub(a.lastEmit) < a.throttle {
		a.mu.Unlock()
		return
	}
	a.lastEmit = a.now()
	m := a.latest
	a.mu.Unlock()

	a.emit(m)
}

// Halt stops the ticker, emits the final not-streaming snapshot exactly
// once, and clears all stored state. Halting an idle aggregator is a no-op.
func (a *Aggregator) Halt() {
	a.mu.Lock()
	stop := a.stop
	a.stop = nil
	a.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	a.wg.Wait()

	a.mu.Lock()
	a.latest = StreamMetrics{}
	a.hasLatest = false
	a.sumFPS, a.sumLat, a.samples = 0, 0, 0
	a.lastEmit = time.Time{}
	a.mu.Unlock()

	a.emit(StreamMetrics{})
}

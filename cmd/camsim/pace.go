package main

import (
	"time"

	"camview/internal/stream"
)

// paceTracker derives per-frame FPS and latency figures. FPS is an
// exponential moving average of the instantaneous inter-frame rate; until
// the first interval exists the target rate is reported as an estimate.
type paceTracker struct {
	targetFPS float64
	lastFrame time.Time
	emaFPS    float64
	primed    bool
}

func newPaceTracker(targetFPS float64) *paceTracker {
	return &paceTracker{targetFPS: targetFPS}
}

func (p *paceTracker) observe(captured time.Time, encodeTime time.Duration) (fps, latencyMS float64, kind stream.LatencyKind) {
	latencyMS = float64(encodeTime) / float64(time.Millisecond)
	kind = stream.LatencyMeasured

	if !p.primed {
		p.primed = true
		p.lastFrame = captured
		p.emaFPS = p.targetFPS
		return p.targetFPS, latencyMS, stream.LatencyEstimated
	}

	delta := captured.Sub(p.lastFrame)
	p.lastFrame = captured
	if delta <= 0 {
		return p.emaFPS, latencyMS, kind
	}
	instant := float64(time.Second) / float64(delta)
	p.emaFPS = 0.9*p.emaFPS + 0.1*instant
	return p.emaFPS, latencyMS, kind
}

package stream

import "time"

// LatencyKind tells whether a latency figure was measured end to end or
// estimated from the producer's target cadence.
type LatencyKind string

const (
	LatencyMeasured  LatencyKind = "measured"
	LatencyEstimated LatencyKind = "estimated"
)

// FrameSample is one encoded frame pushed by the feed, together with the
// timing metrics the producer attached to it. It exists only until decoded.
type FrameSample struct {
	CameraID    string
	Payload     []byte // encoded still image (JPEG)
	Sequence    int64
	CapturedAt  time.Time
	FPS         float64
	LatencyMS   float64
	LatencyKind LatencyKind
	HealthScore int
}

// RTTInfo is the rolling round-trip statistic for one camera, in
// milliseconds. It is produced by the feed server and cached locally.
type RTTInfo struct {
	Current float64
	Average float64
	Min     float64
	Max     float64
}

// StreamMetrics is the derived snapshot emitted to the hosting view.
// The zero value is the "not streaming" snapshot delivered at teardown.
type StreamMetrics struct {
	FPS         float64
	LatencyMS   float64
	IsStreaming bool
	LatencyKind LatencyKind
	AvgFPS      float64
	AvgLatency  float64
	HealthScore int
	RTT         float64
	AvgRTT      float64
	MinRTT      float64
	MaxRTT      float64
}

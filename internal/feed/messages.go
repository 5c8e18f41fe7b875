package feed

import "encoding/json"

// Message types for the feed protocol.
const (
	TypeRegister     = "register"
	TypeRegistered   = "registered"
	TypePublish      = "publish"
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeFrame        = "frame"
	TypeRTTUpdate    = "rtt-update"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeError        = "error"
	TypeCameraGone   = "camera-gone"
)

// ClientType distinguishes camera publishers from viewers.
const (
	ClientTypeCamera = "camera"
	ClientTypeViewer = "viewer"
)

// Message is the envelope for all feed traffic.
type Message struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	ClientType string          `json:"clientType,omitempty"`
	CameraID   string          `json:"cameraId,omitempty"`
	From       string          `json:"from,omitempty"`
	Target     string          `json:"target,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Frame      *FramePayload   `json:"frame,omitempty"`
	RTT        *RTTPayload     `json:"rtt,omitempty"`
	Msg        string          `json:"message,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"` // unix nanos, ping echo
}

// FramePayload carries one encoded frame plus the metrics the producer
// attached to it. Data is base64 on the wire (encoding/json default for
// byte slices).
type FramePayload struct {
	Data        []byte  `json:"data"`
	Sequence    int64   `json:"sequence"`
	CapturedAt  int64   `json:"capturedAt"` // unix millis
	FPS         float64 `json:"fps"`
	LatencyMS   float64 `json:"latencyMs"`
	LatencyKind string  `json:"latencyKind"`
	HealthScore int     `json:"healthScore"`
}

// RTTPayload is the rolling round-trip statistic for one camera, in
// milliseconds.
type RTTPayload struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

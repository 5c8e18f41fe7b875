package direct

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"camview/internal/feed"
	"camview/internal/stream"
)

// Viewer is the viewing side of a direct session. It implements
// stream.FrameChannel, so the pipeline consumes direct frames exactly as it
// consumes hub-relayed ones.
type Viewer struct {
	pc     *webrtc.PeerConnection
	sig    *feed.Client
	hostID string

	mu      sync.Mutex
	nextSub int
	subs    map[string]map[int]stream.FrameHandler
}

// NewViewer creates a viewer peer targeting the camera host identified by
// hostID on the feed.
func NewViewer(sig *feed.Client, hostID string) (*Viewer, error) {
	pc, err := newPeerConnection()
	if err != nil {
		return nil, err
	}

	v := &Viewer{
		pc:     pc,
		sig:    sig,
		hostID: hostID,
		subs:   make(map[string]map[int]stream.FrameHandler),
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "frames" {
			return
		}
		dc.OnOpen(func() {
			log.Println("frames data channel open")
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			v.dispatch(msg.Data)
		})
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Printf("marshal ICE candidate: %v", err)
			return
		}
		_ = sig.SendICECandidate(hostID, data)
	})

	return v, nil
}

// Connect initiates the session by creating and sending an offer.
func (v *Viewer) Connect() error {
	offer, err := v.pc.CreateOffer(nil)
	if err != nil {
		return err
	}

	if err := v.pc.SetLocalDescription(offer); err != nil {
		return err
	}

	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return err
	}

	return v.sig.SendOffer(v.hostID, offerJSON)
}

// HandleAnswer processes the host's SDP answer.
func (v *Viewer) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return err
	}
	return v.pc.SetRemoteDescription(answer)
}

// HandleICECandidate adds a remote ICE candidate.
func (v *Viewer) HandleICECandidate(payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return err
	}
	return v.pc.AddICECandidate(candidate)
}

// SubscribeFrames registers h for cameraID's frames arriving on the data
// channel.
func (v *Viewer) SubscribeFrames(cameraID string, h stream.FrameHandler) (stream.CancelFunc, error) {
	v.mu.Lock()
	id := v.nextSub
	v.nextSub++
	if v.subs[cameraID] == nil {
		v.subs[cameraID] = make(map[int]stream.FrameHandler)
	}
	v.subs[cameraID][id] = h
	v.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs[cameraID], id)
			v.mu.Unlock()
		})
	}
	return cancel, nil
}

func (v *Viewer) dispatch(data []byte) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("unmarshal direct frame: %v", err)
		return
	}
	sample := stream.FrameSample{
		CameraID:    env.CameraID,
		Payload:     env.Frame.Data,
		Sequence:    env.Frame.Sequence,
		CapturedAt:  time.UnixMilli(env.Frame.CapturedAt),
		FPS:         env.Frame.FPS,
		LatencyMS:   env.Frame.LatencyMS,
		LatencyKind: stream.LatencyKind(env.Frame.LatencyKind),
		HealthScore: env.Frame.HealthScore,
	}

	v.mu.Lock()
	handlers := make([]stream.FrameHandler, 0, len(v.subs[env.CameraID]))
	for _, h := range v.subs[env.CameraID] {
		handlers = append(handlers, h)
	}
	v.mu.Unlock()

	for _, h := range handlers {
		h(sample)
	}
}

// Close shuts down the peer connection.
func (v *Viewer) Close() {
	if v.pc != nil {
		v.pc.Close()
	}
}

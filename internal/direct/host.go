package direct

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"camview/internal/feed"
)

// Host is the camera side of one direct viewing session. The camera creates
// a fresh Host per incoming offer; frames ride an unordered, no-retransmit
// data channel so a lost frame is dropped rather than delaying newer ones.
type Host struct {
	pc       *webrtc.PeerConnection
	sig      *feed.Client
	framesDC *webrtc.DataChannel
	peerID   string
	open     atomic.Bool
}

// NewHost creates a host peer for the viewer identified by peerID.
func NewHost(sig *feed.Client, peerID string) (*Host, error) {
	pc, err := newPeerConnection()
	if err != nil {
		return nil, err
	}

	h := &Host{
		pc:     pc,
		sig:    sig,
		peerID: peerID,
	}

	framesOrdered := false
	framesMaxRetransmits := uint16(0)
	framesDC, err := pc.CreateDataChannel("frames", &webrtc.DataChannelInit{
		Ordered:        &framesOrdered,
		MaxRetransmits: &framesMaxRetransmits,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}
	framesDC.OnOpen(func() {
		log.Printf("frames channel open to %s", peerID)
		h.open.Store(true)
	})
	framesDC.OnClose(func() {
		h.open.Store(false)
	})
	h.framesDC = framesDC

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Printf("marshal ICE candidate: %v", err)
			return
		}
		_ = sig.SendICECandidate(peerID, data)
	})

	return h, nil
}

// HandleOffer processes the viewer's SDP offer and answers it.
func (h *Host) HandleOffer(payload json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return err
	}

	if err := h.pc.SetRemoteDescription(offer); err != nil {
		return err
	}

	answer, err := h.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}

	if err := h.pc.SetLocalDescription(answer); err != nil {
		return err
	}

	answerJSON, err := json.Marshal(answer)
	if err != nil {
		return err
	}

	return h.sig.SendAnswer(h.peerID, answerJSON)
}

// HandleICECandidate adds a remote ICE candidate.
func (h *Host) HandleICECandidate(payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return err
	}
	return h.pc.AddICECandidate(candidate)
}

// Ready reports whether the frames channel is open.
func (h *Host) Ready() bool {
	return h.open.Load()
}

// SendFrame ships one encoded frame to the viewer. Frames sent before the
// channel opens are dropped.
func (h *Host) SendFrame(cameraID string, f feed.FramePayload) error {
	if !h.open.Load() {
		return fmt.Errorf("frames channel not open")
	}
	data, err := marshalFrame(cameraID, f)
	if err != nil {
		return err
	}
	return h.framesDC.Send(data)
}

// Close shuts down the peer connection.
func (h *Host) Close() {
	if h.pc != nil {
		h.pc.Close()
	}
}

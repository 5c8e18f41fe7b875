// Package direct carries frames over a WebRTC data channel, peer to peer,
// with signaling relayed through the feed hub. The viewer side satisfies the
// same frame-channel contract as the feed client, so the streaming pipeline
// does not care which transport delivered a frame.
package direct

import (
	"encoding/json"
	"log"

	"github.com/pion/webrtc/v4"

	"camview/internal/feed"
)

// ICEServers is the default ICE server configuration.
var ICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
}

// frameEnvelope is the JSON wire form of one frame on the data channel.
type frameEnvelope struct {
	CameraID string            `json:"cameraId"`
	Frame    feed.FramePayload `json:"frame"`
}

func marshalFrame(cameraID string, f feed.FramePayload) ([]byte, error) {
	return json.Marshal(frameEnvelope{CameraID: cameraID, Frame: f})
}

// newPeerConnection creates a configured PeerConnection.
func newPeerConnection() (*webrtc.PeerConnection, error) {
	cfg := webrtc.Configuration{
		ICEServers: ICEServers,
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("peer connection state: %s", state.String())
	})
	return pc, nil
}

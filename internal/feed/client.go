package feed

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"camview/internal/stream"
)

// Handler callbacks for feed messages that fall outside the subscription
// registry: registration, direct-path signaling relays and errors.
type Handler struct {
	OnRegistered   func()
	OnOffer        func(from string, payload json.RawMessage)
	OnAnswer       func(from string, payload json.RawMessage)
	OnICECandidate func(from string, payload json.RawMessage)
	OnCameraGone   func(cameraID string)
	OnError        func(msg string)
}

// Client is a WebSocket feed client. It implements stream.FrameChannel and
// stream.RTTChannel: subscriptions are registered locally and refcounted per
// camera, so the hub sees one subscribe/unsubscribe per camera regardless of
// how many local handlers exist.
type Client struct {
	url        string
	clientID   string
	clientType string
	handler    Handler

	conn   *websocket.Conn
	mu     sync.Mutex
	done   chan struct{}
	closed bool

	subMu     sync.Mutex
	nextSub   int
	frameSubs map[string]map[int]stream.FrameHandler
	rttSubs   map[string]map[int]func()

	rttMu    sync.Mutex
	rttCache map[string]stream.RTTInfo
}

// NewClient creates a feed client. The client ID is generated; read it back
// with ID() when relaying signaling.
func NewClient(url, clientType string, handler Handler) *Client {
	return &Client{
		url:        url,
		clientID:   fmt.Sprintf("%s-%s", clientType, uuid.NewString()[:8]),
		clientType: clientType,
		handler:    handler,
		done:       make(chan struct{}),
		frameSubs:  make(map[string]map[int]stream.FrameHandler),
		rttSubs:    make(map[string]map[int]func()),
		rttCache:   make(map[string]stream.RTTInfo),
	}
}

// ID returns the generated client ID.
func (c *Client) ID() string {
	return c.clientID
}

// Connect dials the feed server, registers, and starts reading messages.
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("feed dial: %w", err)
	}
	c.conn = conn

	err = c.send(Message{
		Type:       TypeRegister,
		ID:         c.clientID,
		ClientType: c.clientType,
	})
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("feed register: %w", err)
	}

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Close shuts down the connection. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
	}
}

// Publish announces this connection as the source for cameraID.
func (c *Client) Publish(cameraID string) error {
	return c.send(Message{Type: TypePublish, CameraID: cameraID})
}

// SendFrame pushes one encoded frame for cameraID to the hub.
func (c *Client) SendFrame(cameraID string, f FramePayload) error {
	return c.send(Message{Type: TypeFrame, CameraID: cameraID, Frame: &f})
}

// SendOffer relays an SDP offer to target through the hub.
func (c *Client) SendOffer(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeOffer, Target: target, Payload: payload})
}

// SendAnswer relays an SDP answer to target.
func (c *Client) SendAnswer(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeAnswer, Target: target, Payload: payload})
}

// SendICECandidate relays an ICE candidate to target.
func (c *Client) SendICECandidate(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeICECandidate, Target: target, Payload: payload})
}

// SubscribeFrames registers h for cameraID's frames and returns its cancel
// func. The first local subscription for a camera sends a subscribe message
// to the hub; the last cancellation sends unsubscribe.
func (c *Client) SubscribeFrames(cameraID string, h stream.FrameHandler) (stream.CancelFunc, error) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	if c.frameSubs[cameraID] == nil {
		c.frameSubs[cameraID] = make(map[int]stream.FrameHandler)
	}
	first := c.subCount(cameraID) == 0
	c.frameSubs[cameraID][id] = h
	c.subMu.Unlock()

	if first {
		if err := c.send(Message{Type: TypeSubscribe, CameraID: cameraID}); err != nil {
			c.subMu.Lock()
			delete(c.frameSubs[cameraID], id)
			c.subMu.Unlock()
			return nil, fmt.Errorf("subscribe %s: %w", cameraID, err)
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.frameSubs[cameraID], id)
			last := c.subCount(cameraID) == 0
			c.subMu.Unlock()
			if last {
				_ = c.send(Message{Type: TypeUnsubscribe, CameraID: cameraID})
			}
		})
	}
	return cancel, nil
}

// SubscribeRTT registers h to be ticked on rtt-update messages for cameraID.
// Statistics are read separately through RTTInfo.
func (c *Client) SubscribeRTT(cameraID string, h func()) (stream.CancelFunc, error) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	if c.rttSubs[cameraID] == nil {
		c.rttSubs[cameraID] = make(map[int]func())
	}
	first := c.subCount(cameraID) == 0
	c.rttSubs[cameraID][id] = h
	c.subMu.Unlock()

	if first {
		if err := c.send(Message{Type: TypeSubscribe, CameraID: cameraID}); err != nil {
			c.subMu.Lock()
			delete(c.rttSubs[cameraID], id)
			c.subMu.Unlock()
			return nil, fmt.Errorf("subscribe %s: %w", cameraID, err)
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.rttSubs[cameraID], id)
			last := c.subCount(cameraID) == 0
			c.subMu.Unlock()
			if last {
				_ = c.send(Message{Type: TypeUnsubscribe, CameraID: cameraID})
			}
		})
	}
	return cancel, nil
}

// RTTInfo returns the locally cached round-trip statistics for cameraID.
func (c *Client) RTTInfo(cameraID string) (stream.RTTInfo, bool) {
	c.rttMu.Lock()
	defer c.rttMu.Unlock()
	info, ok := c.rttCache[cameraID]
	return info, ok
}

// subCount is the total of frame and rtt subscriptions for a camera.
// Callers hold subMu.
func (c *Client) subCount(cameraID string) int {
	return len(c.frameSubs[cameraID]) + len(c.rttSubs[cameraID])
}

func (c *Client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				log.Printf("feed read error: %v", err)
				return
			}
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	switch msg.Type {
	case TypeRegistered:
		if c.handler.OnRegistered != nil {
			c.handler.OnRegistered()
		}
	case TypeFrame:
		c.dispatchFrame(msg)
	case TypeRTTUpdate:
		c.dispatchRTT(msg)
	case TypeOffer:
		if c.handler.OnOffer != nil {
			c.handler.OnOffer(msg.From, msg.Payload)
		}
	case TypeAnswer:
		if c.handler.OnAnswer != nil {
			c.handler.OnAnswer(msg.From, msg.Payload)
		}
	case TypeICECandidate:
		if c.handler.OnICECandidate != nil {
			c.handler.OnICECandidate(msg.From, msg.Payload)
		}
	case TypeCameraGone:
		if c.handler.OnCameraGone != nil {
			c.handler.OnCameraGone(msg.CameraID)
		}
	case TypeError:
		if c.handler.OnError != nil {
			c.handler.OnError(msg.Msg)
		}
	case TypePing:
		// RTT probe from the hub: echo the timestamp back.
		_ = c.send(Message{Type: TypePong, Timestamp: msg.Timestamp})
	case TypePong:
		// heartbeat response, nothing to do
	}
}

func (c *Client) dispatchFrame(msg Message) {
	if msg.Frame == nil || msg.CameraID == "" {
		return
	}
	sample := stream.FrameSample{
		CameraID:    msg.CameraID,
		Payload:     msg.Frame.Data,
		Sequence:    msg.Frame.Sequence,
		CapturedAt:  time.UnixMilli(msg.Frame.CapturedAt),
		FPS:         msg.Frame.FPS,
		LatencyMS:   msg.Frame.LatencyMS,
		LatencyKind: stream.LatencyKind(msg.Frame.LatencyKind),
		HealthScore: msg.Frame.HealthScore,
	}

	c.subMu.Lock()
	handlers := make([]stream.FrameHandler, 0, len(c.frameSubs[msg.CameraID]))
	for _, h := range c.frameSubs[msg.CameraID] {
		handlers = append(handlers, h)
	}
	c.subMu.Unlock()

	for _, h := range handlers {
		h(sample)
	}
}

func (c *Client) dispatchRTT(msg Message) {
	if msg.RTT == nil || msg.CameraID == "" {
		return
	}
	c.rttMu.Lock()
	c.rttCache[msg.CameraID] = stream.RTTInfo{
		Current: msg.RTT.Current,
		Average: msg.RTT.Average,
		Min:     msg.RTT.Min,
		Max:     msg.RTT.Max,
	}
	c.rttMu.Unlock()

	c.subMu.Lock()
	ticks := make([]func(), 0, len(c.rttSubs[msg.CameraID]))
	for _, h := range c.rttSubs[msg.CameraID] {
		ticks = append(ticks, h)
	}
	c.subMu.Unlock()

	for _, h := range ticks {
		h()
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			_ = c.send(Message{Type: TypePing, Timestamp: time.Now().UnixNano()})
		}
	}
}

package feed

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultPingInterval is how often the hub probes publisher links for RTT.
const DefaultPingInterval = 2 * time.Second

// hubClient is one connected feed client as seen by the hub.
type hubClient struct {
	id         string
	clientType string
	conn       *websocket.Conn

	writeMu sync.Mutex
	cameras map[string]bool // cameras this client publishes
}

func (cl *hubClient) send(msg Message) error {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	return cl.conn.WriteJSON(msg)
}

// Hub is the feed server: it tracks publishers and per-camera subscriber
// sets, relays frames and signaling, probes publisher round-trip times and
// pushes rtt-update ticks to subscribers.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration

	mu          sync.Mutex
	clients     map[string]*hubClient
	publishers  map[string]*hubClient            // cameraID -> publisher
	subscribers map[string]map[string]*hubClient // cameraID -> clientID -> client
	stats       map[string]*rttStats             // cameraID -> rolling RTT

	done   chan struct{}
	closed bool
}

// NewHub creates a hub. pingInterval <= 0 picks the default.
func NewHub(pingInterval time.Duration) *Hub {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Hub{
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		pingInterval: pingInterval,
		clients:      make(map[string]*hubClient),
		publishers:   make(map[string]*hubClient),
		subscribers:  make(map[string]map[string]*hubClient),
		stats:        make(map[string]*rttStats),
		done:         make(chan struct{}),
	}
}

// Start begins the publisher RTT probe loop.
func (h *Hub) Start() {
	go h.pingLoop()
}

// Stop ends the probe loop. Idempotent.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

// ServeHTTP upgrades the connection and serves it until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("feed upgrade: %v", err)
		return
	}
	cl := &hubClient{conn: conn, cameras: make(map[string]bool)}
	defer h.drop(cl)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		h.handle(cl, msg)
	}
}

func (h *Hub) handle(cl *hubClient, msg Message) {
	switch msg.Type {
	case TypeRegister:
		h.mu.Lock()
		cl.id = msg.ID
		cl.clientType = msg.ClientType
		h.clients[cl.id] = cl
		h.mu.Unlock()
		_ = cl.send(Message{Type: TypeRegistered, ID: cl.id})

	case TypePublish:
		if msg.CameraID == "" {
			_ = cl.send(Message{Type: TypeError, Msg: "publish without camera id"})
			return
		}
		h.mu.Lock()
		h.publishers[msg.CameraID] = cl
		cl.cameras[msg.CameraID] = true
		if h.stats[msg.CameraID] == nil {
			h.stats[msg.CameraID] = &rttStats{}
		}
		h.mu.Unlock()
		log.Printf("camera %s published by %s", msg.CameraID, cl.id)

	case TypeSubscribe:
		h.mu.Lock()
		if h.subscribers[msg.CameraID] == nil {
			h.subscribers[msg.CameraID] = make(map[string]*hubClient)
		}
		h.subscribers[msg.CameraID][cl.id] = cl
		h.mu.Unlock()

	case TypeUnsubscribe:
		h.mu.Lock()
		delete(h.subscribers[msg.CameraID], cl.id)
		h.mu.Unlock()

	case TypeFrame:
		h.fanOut(msg)

	case TypeOffer, TypeAnswer, TypeICECandidate:
		h.relay(cl, msg)

	case TypePing:
		_ = cl.send(Message{Type: TypePong, Timestamp: msg.Timestamp})

	case TypePong:
		h.recordRTT(cl, msg.Timestamp)
	}
}

// fanOut delivers a published frame to every subscriber of its camera.
func (h *Hub) fanOut(msg Message) {
	if msg.Frame == nil || msg.CameraID == "" {
		return
	}
	h.mu.Lock()
	targets := make([]*hubClient, 0, len(h.subscribers[msg.CameraID]))
	for _, sub := range h.subscribers[msg.CameraID] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	out := Message{Type: TypeFrame, CameraID: msg.CameraID, Frame: msg.Frame}
	for _, sub := range targets {
		if err := sub.send(out); err != nil {
			log.Printf("frame to %s: %v", sub.id, err)
		}
	}
}

// relay forwards signaling to its target, stamping the sender. The target
// may be a client ID or a camera ID, which resolves to its publisher.
func (h *Hub) relay(from *hubClient, msg Message) {
	h.mu.Lock()
	target := h.clients[msg.Target]
	if target == nil {
		target = h.publishers[msg.Target]
	}
	h.mu.Unlock()
	if target == nil {
		_ = from.send(Message{Type: TypeError, Msg: "unknown target " + msg.Target})
		return
	}
	msg.From = from.id
	msg.Target = ""
	_ = target.send(msg)
}

// recordRTT folds a pong echo into the stats of every camera the client
// publishes and pushes the update to those cameras' subscribers.
func (h *Hub) recordRTT(cl *hubClient, echoed int64) {
	if echoed == 0 {
		return
	}
	ms := float64(time.Now().UnixNano()-echoed) / float64(time.Millisecond)
	if ms < 0 {
		return
	}

	type update struct {
		cameraID string
		rtt      RTTPayload
		targets  []*hubClient
	}
	h.mu.Lock()
	var updates []update
	for cameraID := range cl.cameras {
		st := h.stats[cameraID]
		if st == nil {
			continue
		}
		st.add(ms)
		u := update{cameraID: cameraID, rtt: st.payload()}
		for _, sub := range h.subscribers[cameraID] {
			u.targets = append(u.targets, sub)
		}
		updates = append(updates, u)
	}
	h.mu.Unlock()

	for _, u := range updates {
		rtt := u.rtt
		out := Message{Type: TypeRTTUpdate, CameraID: u.cameraID, RTT: &rtt}
		for _, sub := range u.targets {
			_ = sub.send(out)
		}
	}
}

// pingLoop probes every publisher link so RTT stats stay fresh.
func (h *Hub) pingLoop() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.mu.Lock()
			probed := make(map[*hubClient]bool)
			targets := make([]*hubClient, 0, len(h.publishers))
			for _, pub := range h.publishers {
				if !probed[pub] {
					probed[pub] = true
					targets = append(targets, pub)
				}
			}
			h.mu.Unlock()

			now := time.Now().UnixNano()
			for _, pub := range targets {
				_ = pub.send(Message{Type: TypePing, Timestamp: now})
			}
		}
	}
}

// drop removes a disconnected client and tells subscribers when a published
// camera goes away.
func (h *Hub) drop(cl *hubClient) {
	cl.conn.Close()

	h.mu.Lock()
	if cl.id != "" {
		delete(h.clients, cl.id)
	}
	for _, subs := range h.subscribers {
		delete(subs, cl.id)
	}
	type gone struct {
		cameraID string
		targets  []*hubClient
	}
	var notices []gone
	for cameraID := range cl.cameras {
		if h.publishers[cameraID] == cl {
			delete(h.publishers, cameraID)
			g := gone{cameraID: cameraID}
			for _, sub := range h.subscribers[cameraID] {
				g.targets = append(g.targets, sub)
			}
			notices = append(notices, g)
		}
	}
	h.mu.Unlock()

	for _, g := range notices {
		for _, sub := range g.targets {
			_ = sub.send(Message{Type: TypeCameraGone, CameraID: g.cameraID})
		}
	}
}

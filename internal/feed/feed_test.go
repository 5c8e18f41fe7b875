package feed

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camview/internal/stream"
)

func startHub(t *testing.T, pingInterval time.Duration) string {
	t.Helper()
	hub := NewHub(pingInterval)
	hub.Start()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, url, clientType string, handler Handler) *Client {
	t.Helper()
	registered := make(chan struct{})
	inner := handler.OnRegistered
	handler.OnRegistered = func() {
		if inner != nil {
			inner()
		}
		close(registered)
	}
	c := NewClient(url, clientType, handler)
	require.NoError(t, c.Connect())
	t.Cleanup(c.Close)
	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not register in time")
	}
	return c
}

type sampleSink struct {
	mu      sync.Mutex
	samples []stream.FrameSample
}

func (s *sampleSink) add(sample stream.FrameSample) {
	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
}

func (s *sampleSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

func (s *sampleSink) first() stream.FrameSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples[0]
}

func TestFrameReachesSubscriber(t *testing.T) {
	url := startHub(t, time.Hour) // no RTT probing in this test

	pub := connect(t, url, ClientTypeCamera, Handler{})
	require.NoError(t, pub.Publish("cam-1"))

	viewer := connect(t, url, ClientTypeViewer, Handler{})
	sink := &sampleSink{}
	cancel, err := viewer.SubscribeFrames("cam-1", sink.add)
	require.NoError(t, err)
	defer cancel()

	payload := FramePayload{
		Data:        []byte{0xff, 0xd8, 0x01, 0x02},
		Sequence:    7,
		CapturedAt:  time.Now().UnixMilli(),
		FPS:         24,
		LatencyMS:   40,
		LatencyKind: "measured",
		HealthScore: 90,
	}
	// Subscribe races frame delivery across connections; keep sending until
	// the first frame lands.
	require.Eventually(t, func() bool {
		_ = pub.SendFrame("cam-1", payload)
		return sink.count() > 0
	}, 2*time.Second, 10*time.Millisecond)

	got := sink.first()
	assert.Equal(t, "cam-1", got.CameraID)
	assert.Equal(t, []byte{0xff, 0xd8, 0x01, 0x02}, got.Payload)
	assert.Equal(t, int64(7), got.Sequence)
	assert.Equal(t, 24.0, got.FPS)
	assert.Equal(t, 40.0, got.LatencyMS)
	assert.Equal(t, stream.LatencyMeasured, got.LatencyKind)
	assert.Equal(t, 90, got.HealthScore)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	url := startHub(t, time.Hour)

	pub := connect(t, url, ClientTypeCamera, Handler{})
	require.NoError(t, pub.Publish("cam-1"))

	viewer := connect(t, url, ClientTypeViewer, Handler{})
	sink := &sampleSink{}
	cancel, err := viewer.SubscribeFrames("cam-1", sink.add)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_ = pub.SendFrame("cam-1", FramePayload{Data: []byte{1}})
		return sink.count() > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	cancel() // cancelling twice is safe
	time.Sleep(100 * time.Millisecond)

	before := sink.count()
	for i := 0; i < 5; i++ {
		_ = pub.SendFrame("cam-1", FramePayload{Data: []byte{2}})
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, before, sink.count(), "no delivery after unsubscribe")
}

func TestRTTStatsFlowToSubscribers(t *testing.T) {
	url := startHub(t, 10*time.Millisecond)

	pub := connect(t, url, ClientTypeCamera, Handler{})
	require.NoError(t, pub.Publish("cam-1"))

	viewer := connect(t, url, ClientTypeViewer, Handler{})
	var ticks sync.WaitGroup
	ticks.Add(1)
	var once sync.Once
	cancel, err := viewer.SubscribeRTT("cam-1", func() {
		once.Do(ticks.Done)
	})
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool {
		_, ok := viewer.RTTInfo("cam-1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	info, ok := viewer.RTTInfo("cam-1")
	require.True(t, ok)
	assert.GreaterOrEqual(t, info.Current, 0.0)
	assert.GreaterOrEqual(t, info.Max, info.Min)

	done := make(chan struct{})
	go func() {
		ticks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("rtt tick handler never fired")
	}
}

func TestCameraGoneNotifiesSubscribers(t *testing.T) {
	url := startHub(t, time.Hour)

	pub := connect(t, url, ClientTypeCamera, Handler{})
	require.NoError(t, pub.Publish("cam-1"))

	gone := make(chan string, 1)
	viewer := connect(t, url, ClientTypeViewer, Handler{
		OnCameraGone: func(cameraID string) {
			select {
			case gone <- cameraID:
			default:
			}
		},
	})
	_, err := viewer.SubscribeFrames("cam-1", func(stream.FrameSample) {})
	require.NoError(t, err)

	// Give the hub a beat to process the subscription before dropping the
	// publisher.
	time.Sleep(50 * time.Millisecond)
	pub.Close()

	select {
	case id := <-gone:
		assert.Equal(t, "cam-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("camera-gone never delivered")
	}
}

func TestRelayResolvesCameraIDToPublisher(t *testing.T) {
	url := startHub(t, time.Hour)

	offers := make(chan string, 1)
	pub := connect(t, url, ClientTypeCamera, Handler{
		OnOffer: func(from string, _ json.RawMessage) {
			select {
			case offers <- from:
			default:
			}
		},
	})
	require.NoError(t, pub.Publish("cam-1"))

	viewer := connect(t, url, ClientTypeViewer, Handler{})
	var from string
	require.Eventually(t, func() bool {
		_ = viewer.SendOffer("cam-1", json.RawMessage(`{"type":"offer"}`))
		select {
		case f := <-offers:
			from = f
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, viewer.ID(), from)
}

package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFrames struct {
	mu      sync.Mutex
	handler FrameHandler
	subs    int
	cancels int
	err     error
}

func (s *stubFrames) SubscribeFrames(cameraID string, h FrameHandler) (CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.subs++
	s.handler = h
	return func() {
		s.mu.Lock()
		s.cancels++
		s.handler = nil
		s.mu.Unlock()
	}, nil
}

func (s *stubFrames) deliver(sample FrameSample) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(sample)
	}
}

func (s *stubFrames) counts() (subs, cancels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs, s.cancels
}

type stubRTT struct {
	mu      sync.Mutex
	info    RTTInfo
	ok      bool
	subs    int
	cancels int
}

func (s *stubRTT) SubscribeRTT(cameraID string, h func()) (CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs++
	return func() {
		s.mu.Lock()
		s.cancels++
		s.mu.Unlock()
	}, nil
}

func (s *stubRTT) RTTInfo(cameraID string) (RTTInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, s.ok
}

func (s *stubRTT) counts() (subs, cancels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs, s.cancels
}

type errorRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *errorRecorder) record(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *errorRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func frameFor(t *testing.T, cameraID string, seq int64) FrameSample {
	t.Helper()
	return FrameSample{
		CameraID:    cameraID,
		Payload:     jpegPayload(t, 8, 6),
		Sequence:    seq,
		CapturedAt:  time.Now(),
		FPS:         24,
		LatencyMS:   40,
		LatencyKind: LatencyMeasured,
		HealthScore: 90,
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeSurface, *stubFrames, *stubRTT, *errorRecorder, *metricsRecorder) {
	t.Helper()
	surface := &fakeSurface{}
	frames := &stubFrames{}
	rtt := &stubRTT{}
	errs := &errorRecorder{}
	rec := &metricsRecorder{}
	p := NewPipeline("cam-1", surface, frames, rtt, Callbacks{
		OnError:   errs.record,
		OnMetrics: rec.emit,
	}, Options{RenderInterval: time.Millisecond})
	t.Cleanup(p.Close)
	return p, surface, frames, rtt, errs, rec
}

func waitDistinctPaints(t *testing.T, surface *fakeSurface, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, _, distinct := surface.counts()
		return distinct >= want
	}, 2*time.Second, time.Millisecond)
}

func TestPipelinePaintsDeliveredFrames(t *testing.T) {
	p, surface, frames, _, errs, rec := newTestPipeline(t)
	require.NoError(t, p.SetConnected(true))

	frames.deliver(frameFor(t, "cam-1", 1))
	waitDistinctPaints(t, surface, 1)

	w, h := surface.Size()
	assert.Equal(t, 8, w)
	assert.Equal(t, 6, h)
	assert.Equal(t, 0, errs.count())
	assert.False(t, p.WaitingFirstFrame())
	require.NotEmpty(t, rec.all())
	assert.True(t, rec.all()[0].IsStreaming)
}

func TestPipelineFiltersOtherCameras(t *testing.T) {
	p, surface, frames, _, _, rec := newTestPipeline(t)
	require.NoError(t, p.SetConnected(true))

	frames.deliver(frameFor(t, "cam-2", 1))
	time.Sleep(20 * time.Millisecond)

	paints, _, _ := surface.counts()
	assert.Equal(t, 0, paints)
	assert.Empty(t, rec.all())
}

func TestDecodeFailureIsolation(t *testing.T) {
	p, surface, frames, _, errs, _ := newTestPipeline(t)
	require.NoError(t, p.SetConnected(true))

	painted := 0
	for i := int64(0); i < 10; i++ {
		if i == 4 {
			bad := frameFor(t, "cam-1", i)
			bad.Payload = []byte("garbage")
			frames.deliver(bad)
			continue
		}
		frames.deliver(frameFor(t, "cam-1", i))
		painted++
		waitDistinctPaints(t, surface, painted)
	}

	assert.Equal(t, 9, painted)
	require.Eventually(t, func() bool { return errs.count() == 1 },
		time.Second, time.Millisecond, "exactly one error for the malformed payload")
}

func TestDisconnectEmitsFinalSnapshotAndStopsPainting(t *testing.T) {
	p, surface, frames, _, _, rec := newTestPipeline(t)
	require.NoError(t, p.SetConnected(true))

	frames.deliver(frameFor(t, "cam-1", 1))
	waitDistinctPaints(t, surface, 1)

	require.NoError(t, p.SetConnected(false))

	emitted := rec.all()
	require.NotEmpty(t, emitted)
	final := emitted[len(emitted)-1]
	assert.False(t, final.IsStreaming)
	assert.Zero(t, final.FPS)
	assert.Zero(t, final.AvgFPS)
	assert.Zero(t, final.AvgLatency)
	assert.Zero(t, final.HealthScore)

	paintsAtTeardown, _, _ := surface.counts()
	frames.deliver(frameFor(t, "cam-1", 2))
	time.Sleep(20 * time.Millisecond)
	paintsAfter, _, _ := surface.counts()
	assert.Equal(t, paintsAtTeardown, paintsAfter, "no paint after teardown")
}

func TestReconnectShowsLoadingStateAgain(t *testing.T) {
	p, surface, frames, _, _, _ := newTestPipeline(t)

	require.NoError(t, p.SetConnected(true))
	frames.deliver(frameFor(t, "cam-1", 1))
	waitDistinctPaints(t, surface, 1)
	assert.False(t, p.WaitingFirstFrame())

	require.NoError(t, p.SetConnected(false))
	require.NoError(t, p.SetConnected(true))
	assert.True(t, p.WaitingFirstFrame(), "second connect waits for a first frame again")
}

func TestTeardownCancelsSubscriptionsExactlyOnce(t *testing.T) {
	p, _, frames, rtt, _, _ := newTestPipeline(t)

	require.NoError(t, p.SetConnected(true))
	require.NoError(t, p.SetConnected(false))
	p.Close() // second teardown is a no-op

	_, frameCancels := frames.counts()
	_, rttCancels := rtt.counts()
	assert.Equal(t, 1, frameCancels)
	assert.Equal(t, 1, rttCancels)

	// A fresh cycle subscribes again.
	require.NoError(t, p.SetConnected(true))
	frameSubs, _ := frames.counts()
	rttSubs, _ := rtt.counts()
	assert.Equal(t, 2, frameSubs)
	assert.Equal(t, 2, rttSubs)
}

func TestSubscriptionFailureSurfacesAndRollsBack(t *testing.T) {
	surface := &fakeSurface{}
	frames := &stubFrames{err: assert.AnError}
	p := NewPipeline("cam-1", surface, frames, nil, Callbacks{}, Options{RenderInterval: time.Millisecond})

	err := p.SetConnected(true)
	require.Error(t, err)

	// Pipeline stayed idle: a later disconnect is a no-op and nothing leaks.
	require.NoError(t, p.SetConnected(false))
	paints, _, _ := surface.counts()
	assert.Equal(t, 0, paints)
}

func TestMetricsCarryRTTFromLookup(t *testing.T) {
	p, _, frames, rtt, _, rec := newTestPipeline(t)
	rtt.mu.Lock()
	rtt.info = RTTInfo{Current: 10, Average: 12, Min: 9, Max: 20}
	rtt.ok = true
	rtt.mu.Unlock()

	require.NoError(t, p.SetConnected(true))
	frames.deliver(frameFor(t, "cam-1", 1))

	require.Eventually(t, func() bool { return len(rec.all()) > 0 }, time.Second, time.Millisecond)
	first := rec.all()[0]
	assert.Equal(t, 10.0, first.RTT)
	assert.Equal(t, 20.0, first.MaxRTT)
}

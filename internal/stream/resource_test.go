package stream

import (
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liveTracker counts resources that have been created but not yet released.
type liveTracker struct {
	mu       sync.Mutex
	live     int
	maxLive  int
	released int
}

func (t *liveTracker) track() func() {
	t.mu.Lock()
	t.live++
	if t.live > t.maxLive {
		t.maxLive = t.live
	}
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		t.live--
		t.released++
		t.mu.Unlock()
	}
}

func (t *liveTracker) snapshot() (live, maxLive, released int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live, t.maxLive, t.released
}

func testImage(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestResourceManagerBoundsLiveHandles(t *testing.T) {
	tracker := &liveTracker{}
	m := NewResourceManager()

	const n = 10
	for i := 0; i < n; i++ {
		res := NewLoadingResource(tracker.track())
		res.Complete(testImage(4, 4))
		m.Install(res)

		live, maxLive, _ := tracker.snapshot()
		assert.LessOrEqual(t, live, 2, "live handles after install %d", i)
		assert.LessOrEqual(t, maxLive, 2)
	}

	m.ReleaseAll()
	live, _, released := tracker.snapshot()
	assert.Equal(t, 0, live, "no live handles after teardown")
	assert.Equal(t, n, released, "every install released exactly once")
}

func TestResourceReleaseIsIdempotent(t *testing.T) {
	calls := 0
	res := NewLoadingResource(func() { calls++ })
	res.Complete(testImage(2, 2))

	res.Release()
	res.Release()
	assert.Equal(t, 1, calls, "release hook fires once")
	assert.False(t, res.Ready())
	assert.Nil(t, res.Image())
}

func TestReleaseAllThenReleaseAllIsSafe(t *testing.T) {
	calls := 0
	m := NewResourceManager()
	res := NewLoadingResource(func() { calls++ })
	res.Complete(testImage(2, 2))
	m.Install(res)

	m.ReleaseAll()
	m.ReleaseAll()
	assert.Equal(t, 1, calls)
	assert.Nil(t, m.Current())
}

func TestInstallAfterReleaseAllReleasesImmediately(t *testing.T) {
	m := NewResourceManager()
	m.ReleaseAll()

	calls := 0
	late := NewLoadingResource(func() { calls++ })
	m.Install(late)

	assert.Equal(t, 1, calls, "late install is revoked, not leaked")
	assert.Nil(t, m.Current())

	// A fresh activation accepts installs again.
	m.Reopen()
	res := NewLoadingResource(nil)
	m.Install(res)
	require.Same(t, res, m.Current())
}

func TestCompleteAfterReleaseDiscardsPixels(t *testing.T) {
	res := NewLoadingResource(nil)
	res.Release()
	res.Complete(testImage(2, 2))

	assert.False(t, res.Ready())
	assert.Nil(t, res.Image())
}

func TestLoadingResourceNotReadyUntilComplete(t *testing.T) {
	res := NewLoadingResource(nil)
	assert.False(t, res.Ready())
	assert.Nil(t, res.Image())

	res.Complete(testImage(3, 3))
	assert.True(t, res.Ready())
	require.NotNil(t, res.Image())
}

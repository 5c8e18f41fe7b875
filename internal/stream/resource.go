package stream

import (
	"image"
	"sync"
)

// DecodedResource is a revocable handle around a decoded frame. It starts in
// a loading state; the decode goroutine completes it, and the render loop
// only paints it once Ready reports true. Release revokes the handle and
// drops the pixel reference; releasing twice is a no-op.
type DecodedResource struct {
	mu        sync.Mutex
	img       *image.RGBA
	ready     bool
	released  bool
	onRelease func()
}

// NewLoadingResource returns a resource awaiting its decoded pixels.
// onRelease, if non-nil, runs exactly once when the handle is revoked.
func NewLoadingResource(onRelease func()) *DecodedResource {
	return &DecodedResource{onRelease: onRelease}
}

// Complete installs the decoded pixels and marks the resource paintable.
// Completing an already-released resource is harmless: the pixels are
// discarded because nothing will ever observe the handle again.
func (r *DecodedResource) Complete(img *image.RGBA) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.img = img
	r.ready = true
}

// Ready reports whether the resource holds decoded pixels and has not been
// revoked. This is the readiness predicate the render loop polls each cycle.
func (r *DecodedResource) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready && !r.released
}

// Image returns the decoded pixels, or nil if not ready or released.
func (r *DecodedResource) Image() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready || r.released {
		return nil
	}
	return r.img
}

// Release revokes the handle. Safe to call more than once; only the first
// call drops the pixels and fires the release hook.
func (r *DecodedResource) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.img = nil
	hook := r.onRelease
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// ResourceManager owns the single current decoded resource for one camera
// view. Install swaps in a new handle and releases the previous one, so at
// most two handles are transiently alive during the swap. ReleaseAll is
// called on disconnect and on teardown.
type ResourceManager struct {
	mu      sync.Mutex
	current *DecodedResource
	closed  bool
}

func NewResourceManager() *ResourceManager {
	return &ResourceManager{}
}

// Install makes res the current resource and releases the previous one.
// After ReleaseAll the manager is closed: a late install (a frame racing
// teardown) is released immediately instead of leaking.
func (m *ResourceManager) Install(res *DecodedResource) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		res.Release()
		return
	}
	prev := m.current
	m.current = res
	m.mu.Unlock()

	if prev != nil {
		prev.Release()
	}
}

// Reopen clears the closed state for a fresh activation.
func (m *ResourceManager) Reopen() {
	m.mu.Lock()
	m.closed = false
	m.mu.Unlock()
}

// Current returns the current resource, which may still be loading, or nil.
func (m *ResourceManager) Current() *DecodedResource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// ReleaseAll revokes the current resource, resets to empty and closes the
// manager until the next Reopen.
func (m *ResourceManager) ReleaseAll() {
	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.closed = true
	m.mu.Unlock()

	if cur != nil {
		cur.Release()
	}
}

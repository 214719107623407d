// Package capture models the lease a session holds over the user's camera
// and microphone. The tracks themselves live in the client; the server only
// grants the lease and tells the client when to stop them.
package capture

import (
	"context"
	"errors"
	"sync"
)

// ErrPermissionDenied means the user refused camera/microphone access.
var ErrPermissionDenied = errors.New("camera and microphone permission denied")

// Handle identifies one acquired capture lease.
type Handle struct {
	ID       uint64
	TextOnly bool
	released bool
}

// Device acquires and releases capture leases.
type Device interface {
	Acquire(ctx context.Context) (*Handle, error)
	Release(h *Handle)
}

// ClientDevice grants leases based on what the client reported and asks the
// client to stop its tracks on release.
type ClientDevice struct {
	mu        sync.Mutex
	granted   bool
	next      uint64
	onRelease func(*Handle)
}

// NewClientDevice creates a device; onRelease is invoked once per released
// handle (typically to send a release_media event).
func NewClientDevice(onRelease func(*Handle)) *ClientDevice {
	return &ClientDevice{onRelease: onRelease}
}

// SetGranted records the latest permission state reported by the client.
func (d *ClientDevice) SetGranted(granted bool) {
	d.mu.Lock()
	d.granted = granted
	d.mu.Unlock()
}

func (d *ClientDevice) Acquire(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.granted {
		return nil, ErrPermissionDenied
	}
	d.next++
	return &Handle{ID: d.next}, nil
}

func (d *ClientDevice) Release(h *Handle) {
	if h == nil {
		return
	}
	d.mu.Lock()
	if h.released {
		d.mu.Unlock()
		return
	}
	h.released = true
	d.mu.Unlock()
	if d.onRelease != nil {
		d.onRelease(h)
	}
}

// TextOnlyDevice always grants a lease without media; used by transports that
// carry no video.
type TextOnlyDevice struct {
	mu   sync.Mutex
	next uint64
}

func (d *TextOnlyDevice) Acquire(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	return &Handle{ID: d.next, TextOnly: true}, nil
}

func (d *TextOnlyDevice) Release(h *Handle) {
	if h != nil {
		d.mu.Lock()
		h.released = true
		d.mu.Unlock()
	}
}

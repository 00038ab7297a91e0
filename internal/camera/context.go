// Package camera is the safe access layer over the depth-camera SDK.
//
// Every native object is held by a guard that releases it exactly once,
// either on Close or when its Go owner is garbage collected. All objects
// are created through a Context, which refuses to shut down while any of
// them is still alive.
//
// Objects are safe for concurrent use unless documented otherwise. A
// Pipeline is single-writer: Start, Stop and WaitForFrames must not be
// called concurrently, with the exception of Stop, which may be called from
// another goroutine to interrupt a blocked WaitForFrames.
package camera

import (
	"fmt"
	"sync"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/monitoring"
	"github.com/banshee-data/depthcam/internal/native"
)

// Context is the SDK runtime. Objects created through it keep it alive;
// Close refuses while any remain.
type Context struct {
	api native.API
	h   native.Handle

	mu         sync.Mutex
	dependents int
	closed     bool

	cacheMu    sync.RWMutex
	extrinsics map[[2]int]Extrinsics
	intrinsics map[intrinsicsKey]Intrinsics
}

// NewContext creates an SDK context on api.
func NewContext(api native.API) (*Context, error) {
	h, e := api.CreateContext(native.APIVersion)
	if err := translate("create context", e); err != nil {
		return nil, err
	}
	if h == 0 {
		return nil, nullHandle("create context")
	}
	return &Context{
		api:        api,
		h:          h,
		extrinsics: make(map[[2]int]Extrinsics),
		intrinsics: make(map[intrinsicsKey]Intrinsics),
	}, nil
}

var defaultContext = sync.OnceValues(func() (*Context, error) {
	return NewContext(native.Default())
})

// Default returns the process-wide context on the compiled-in SDK binding,
// creating it on first use. It lives until the process exits or it is
// closed explicitly.
func Default() (*Context, error) {
	return defaultContext()
}

func (c *Context) retain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	c.dependents++
	return nil
}

func (c *Context) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dependents--
}

// Dependents returns the number of live objects created through c.
func (c *Context) Dependents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dependents
}

// Close deletes the native context. It fails with ErrContextInUse while
// any device, pipeline or frame created through c is still open, and is a
// no-op once closed. Objects dropped without Close are released by the
// garbage collector and count as live until then.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if c.dependents > 0 {
		return fmt.Errorf("close context: %w (%d open)", ErrContextInUse, c.dependents)
	}
	c.closed = true
	c.api.DeleteContext(c.h)
	c.h = 0
	monitoring.Debugf("context closed")
	return nil
}

func (c *Context) cacheExtrinsics(from, to int, e Extrinsics) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.extrinsics[[2]int{from, to}] = e
}

func (c *Context) cachedExtrinsics(from, to int) (Extrinsics, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	e, ok := c.extrinsics[[2]int{from, to}]
	return e, ok
}

// intrinsicsKey identifies one mode of a stream. Modes of a stream share a
// unique id but not their calibration.
type intrinsicsKey struct {
	uid           int
	width, height int
	format        kind.Format
}

func (c *Context) cacheIntrinsics(k intrinsicsKey, in Intrinsics) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.intrinsics[k] = in
}

func (c *Context) cachedIntrinsics(k intrinsicsKey) (Intrinsics, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	in, ok := c.intrinsics[k]
	return in, ok
}

package camera

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/monitoring"
	"github.com/banshee-data/depthcam/internal/native"
)

var releaseFuncs = map[kind.Resource]func(native.API, native.Handle){
	kind.ResourceDeviceList:      native.API.DeleteDeviceList,
	kind.ResourceDevice:          native.API.DeleteDevice,
	kind.ResourceSensorList:      native.API.DeleteSensorList,
	kind.ResourceSensor:          native.API.DeleteSensor,
	kind.ResourceProfileList:     native.API.DeleteStreamProfiles,
	kind.ResourceConfig:          native.API.DeleteConfig,
	kind.ResourcePipeline:        native.API.DeletePipeline,
	kind.ResourcePipelineProfile: native.API.DeletePipelineProfile,
	kind.ResourceFrame:           native.API.ReleaseFrame,
	kind.ResourceDeviceHub:       native.API.DeleteDeviceHub,
}

// guard owns one release obligation for a native handle. The handle is
// reachable only through use, which holds a shared lock; release takes the
// exclusive lock, so it waits for in-flight calls and runs at most once.
//
// Every guard keeps its Context alive until released.
type guard struct {
	res kind.Resource
	ctx *Context

	mu       sync.RWMutex
	h        native.Handle
	released bool
}

// exclusive is the single owner of a native object.
type exclusive struct{ *guard }

// refCounted holds one reference to a reference counted native object
// (frames and frame sets). clone takes another reference through the SDK;
// each clone is released independently.
type refCounted struct{ *guard }

func newGuard(ctx *Context, res kind.Resource, op string, ctor func(native.API) (native.Handle, *native.Error)) (*guard, error) {
	if err := ctx.retain(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	h, e := ctor(ctx.api)
	if err := translate(op, e); err != nil {
		ctx.drop()
		return nil, err
	}
	if h == 0 {
		ctx.drop()
		return nil, nullHandle(op)
	}
	monitoring.Debugf("acquired %s %#x (%s)", res, uintptr(h), op)
	return &guard{res: res, ctx: ctx, h: h}, nil
}

// acquire runs a native constructor and takes ownership of its result.
func acquire(ctx *Context, res kind.Resource, op string, ctor func(native.API) (native.Handle, *native.Error)) (*exclusive, error) {
	g, err := newGuard(ctx, res, op, ctor)
	if err != nil {
		return nil, err
	}
	return &exclusive{g}, nil
}

// acquireFrom runs a constructor that takes the handle of parent.
func acquireFrom(parent *guard, res kind.Resource, op string, ctor func(native.API, native.Handle) (native.Handle, *native.Error)) (*exclusive, error) {
	var out *exclusive
	err := parent.use(func(ph native.Handle) error {
		var err error
		out, err = acquire(parent.ctx, res, op, func(api native.API) (native.Handle, *native.Error) {
			return ctor(api, ph)
		})
		return err
	})
	return out, err
}

// adoptFrame takes ownership of a frame reference the SDK handed out. If
// the context refuses new dependents the reference is released at once.
func adoptFrame(ctx *Context, h native.Handle) (*refCounted, error) {
	if err := ctx.retain(); err != nil {
		ctx.api.ReleaseFrame(h)
		return nil, err
	}
	return &refCounted{&guard{res: kind.ResourceFrame, ctx: ctx, h: h}}, nil
}

// clone takes an additional native reference.
func (r *refCounted) clone() (*refCounted, error) {
	var out *refCounted
	err := r.use(func(h native.Handle) error {
		if e := r.ctx.api.FrameAddRef(h); e != nil {
			return translate("add frame reference", e)
		}
		var err error
		out, err = adoptFrame(r.ctx, h)
		return err
	})
	return out, err
}

// use calls fn with the live handle. It fails with ErrReleased once the
// guard has been released.
func (g *guard) use(fn func(native.Handle) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.released {
		return fmt.Errorf("%s: %w", g.res, ErrReleased)
	}
	return fn(g.h)
}

// release issues the native release routine unless it already ran. It
// reports whether this call released the handle.
func (g *guard) release() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return false
	}
	g.released = true
	releaseFuncs[g.res](g.ctx.api, g.h)
	monitoring.Debugf("released %s %#x", g.res, uintptr(g.h))
	g.h = 0
	g.ctx.drop()
	return true
}

func (g *guard) alive() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return !g.released
}

// releaseOnCollect releases g once owner becomes unreachable, unless it was
// released explicitly first. g must not reference owner.
func releaseOnCollect[T any](owner *T, g *guard) {
	runtime.AddCleanup(owner, func(g *guard) { g.release() }, g)
}

// deps is a set of guards released together, newest first. Objects
// enumerated through a device (sensors, profile lists) are tracked here so
// the device releases them on Close.
type deps struct {
	mu     sync.Mutex
	closed bool
	list   []*guard
}

// add tracks g. If the set is already closed g is released immediately and
// ErrReleased is returned.
func (d *deps) add(g *guard) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		g.release()
		return fmt.Errorf("%s: owner closed: %w", g.res, ErrReleased)
	}
	d.list = append(d.list, g)
	return nil
}

func (d *deps) releaseAll() {
	d.mu.Lock()
	list := d.list
	d.list = nil
	d.closed = true
	d.mu.Unlock()
	for i := len(list) - 1; i >= 0; i-- {
		list[i].release()
	}
}

// owner is a guard together with the objects enumerated through it.
type owner struct {
	self *guard
	deps deps
}

func (o *owner) release() {
	o.deps.releaseAll()
	o.self.release()
}

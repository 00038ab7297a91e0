package camera

import (
	"fmt"
	"math"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/monitoring"
	"github.com/banshee-data/depthcam/internal/native"
	"github.com/banshee-data/depthcam/internal/timeutil"
)

// DefaultTimeout is the SDK's default frame wait.
const DefaultTimeout = native.DefaultTimeoutMillis * time.Millisecond

// State is the lifecycle state of a Pipeline.
type State int

const (
	Idle State = iota
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// pipelineResources is what a Pipeline releases, either on Close or when
// it is collected. The session (pipeline profile plus its active stream
// list) is replaced on every Start.
type pipelineResources struct {
	pipe *guard

	mu      sync.Mutex
	session *owner
}

func (r *pipelineResources) setSession(s *owner) {
	r.mu.Lock()
	old := r.session
	r.session = s
	r.mu.Unlock()
	if old != nil {
		old.release()
	}
}

func (r *pipelineResources) release() {
	r.setSession(nil)
	r.pipe.release()
}

// Pipeline drives streaming from one device: Idle -> Streaming on Start,
// back to Idle on Stop, Closed after Close.
type Pipeline struct {
	ctx   *Context
	g     *exclusive
	res   *pipelineResources
	stats *Stats

	mu     sync.Mutex
	state  State
	active []StreamProfile
	device *Device
}

// NewPipeline creates an idle pipeline.
func (c *Context) NewPipeline() (*Pipeline, error) {
	return c.newPipeline(timeutil.RealClock{})
}

func (c *Context) newPipeline(clock timeutil.Clock) (*Pipeline, error) {
	g, err := acquire(c, kind.ResourcePipeline, "create pipeline", func(api native.API) (native.Handle, *native.Error) {
		return api.CreatePipeline(c.h)
	})
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		ctx:   c,
		g:     g,
		res:   &pipelineResources{pipe: g.guard},
		stats: NewStats(clock),
	}
	runtime.AddCleanup(p, func(r *pipelineResources) { r.release() }, p.res)
	return p, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start resolves cfg against the connected devices and starts streaming.
// A nil or empty cfg starts the device defaults. It returns the active
// profiles in SDK order.
//
// Start is atomic: on any failure nothing stays streaming and everything
// acquired on the way is released.
func (p *Pipeline) Start(cfg *PipelineConfig) ([]StreamProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case Streaming:
		return nil, fmt.Errorf("start: %w", ErrAlreadyStreaming)
	case Closed:
		return nil, fmt.Errorf("start: pipeline closed: %w", ErrReleased)
	}

	snap := cfg.snapshot()
	resolved, err := snap.Resolve(p.ctx)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	prof, err := p.startNative(snap, resolved.Serial)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	session := &owner{self: prof.guard}
	active, device, err := p.readSession(session)
	if err != nil {
		if serr := p.g.use(func(h native.Handle) error {
			return translate("stop pipeline", p.ctx.api.PipelineStop(h))
		}); serr != nil {
			monitoring.Logf("start rollback: %v", serr)
		}
		session.release()
		return nil, fmt.Errorf("start: %w", err)
	}
	p.res.setSession(session)
	p.active = active
	p.device = device
	p.state = Streaming
	p.stats.GetAndReset()
	p.warmCaches(active)

	names := make([]string, len(active))
	for i, sp := range active {
		names[i] = sp.String()
	}
	monitoring.Logf("pipeline started on %s: %s", resolved.Serial, strings.Join(names, ", "))
	return slices.Clone(active), nil
}

// startNative builds a native config from snap and starts the pipeline on
// it. The native config is released before returning.
func (p *Pipeline) startNative(snap *PipelineConfig, serial string) (*exclusive, error) {
	api := p.ctx.api
	ncfg, err := acquire(p.ctx, kind.ResourceConfig, "create config", native.API.CreateConfig)
	if err != nil {
		return nil, err
	}
	defer ncfg.release()

	var prof *exclusive
	err = ncfg.use(func(ch native.Handle) error {
		if serial != "" {
			if err := translate("enable device "+serial, api.ConfigEnableDevice(ch, serial)); err != nil {
				return err
			}
		}
		for _, r := range snap.requests {
			if err := translate("enable stream "+describeRequest(r), api.ConfigEnableStream(ch, r)); err != nil {
				return err
			}
		}
		var err error
		prof, err = acquireFrom(p.g.guard, kind.ResourcePipelineProfile, "start pipeline", func(api native.API, ph native.Handle) (native.Handle, *native.Error) {
			return api.PipelineStartWithConfig(ph, ch)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return prof, nil
}

func (p *Pipeline) readSession(session *owner) ([]StreamProfile, *Device, error) {
	list, err := acquireFrom(session.self, kind.ResourceProfileList, "get active streams", native.API.PipelineProfileStreams)
	if err != nil {
		return nil, nil, err
	}
	if err := session.deps.add(list.guard); err != nil {
		return nil, nil, err
	}
	active, err := readProfileList(p.ctx, list.guard)
	if err != nil {
		return nil, nil, err
	}
	dg, err := acquireFrom(session.self, kind.ResourceDevice, "get active device", native.API.PipelineProfileDevice)
	if err != nil {
		return nil, nil, err
	}
	return active, newDevice(p.ctx, dg), nil
}

// warmCaches reads calibration of the active streams while their profiles
// are live, so it stays available after Stop.
func (p *Pipeline) warmCaches(active []StreamProfile) {
	for _, a := range active {
		if a.Stream.IsVideo() {
			if _, err := a.Intrinsics(); err != nil {
				monitoring.Debugf("intrinsics of %s: %v", a.Key(), err)
			}
		}
		for _, b := range active {
			if a.UniqueID == b.UniqueID {
				continue
			}
			if _, err := a.ExtrinsicsTo(b); err != nil {
				monitoring.Debugf("%v", err)
			}
		}
	}
}

// Stop ends streaming and releases the session. Stopping an idle pipeline
// does nothing. A WaitForFrames blocked in another goroutine returns
// ErrNotStreaming.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Streaming {
		return nil
	}
	return p.stopLocked()
}

func (p *Pipeline) stopLocked() error {
	p.state = Idle
	err := p.g.use(func(h native.Handle) error {
		return translate("stop pipeline", p.ctx.api.PipelineStop(h))
	})
	p.res.setSession(nil)
	if p.device != nil {
		p.device.Close()
		p.device = nil
	}
	p.active = nil
	if err != nil {
		return err
	}
	monitoring.Logf("pipeline stopped")
	return nil
}

// Close stops the pipeline if needed and releases it. It waits for an
// in-flight wait to return and is safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	var err error
	if p.state == Streaming {
		err = p.stopLocked()
	}
	p.state = Closed
	p.mu.Unlock()
	p.res.release()
	return err
}

// ActiveProfiles returns the profiles of the running session, or nil when
// idle.
func (p *Pipeline) ActiveProfiles() []StreamProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.active)
}

// ActiveDevice returns the device of the running session. It is owned by
// the pipeline and closed by Stop.
func (p *Pipeline) ActiveDevice() (*Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Streaming {
		return nil, fmt.Errorf("active device: %w", ErrNotStreaming)
	}
	return p.device, nil
}

// Stats returns the frame delivery counters of p.
func (p *Pipeline) Stats() *Stats { return p.stats }

// timeoutMillis converts d for the SDK, rounding sub-millisecond waits up
// and clamping to the native range.
func timeoutMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}

// WaitForFrames blocks until the next frame set arrives or timeout elapses.
// A timeout returns ErrTimeout and leaves the pipeline streaming. A zero
// timeout checks once without blocking.
func (p *Pipeline) WaitForFrames(timeout time.Duration) (*FrameSet, error) {
	const op = "wait for frames"
	if s := p.State(); s != Streaming {
		return nil, fmt.Errorf("%s: %w", op, ErrNotStreaming)
	}
	var (
		h  native.Handle
		ok bool
	)
	err := p.g.use(func(ph native.Handle) error {
		var e *native.Error
		h, ok, e = p.ctx.api.PipelineTryWaitForFrames(ph, timeoutMillis(timeout))
		return translate(op, e)
	})
	fs, got, err := p.deliver(op, h, ok, err)
	if err == nil && !got {
		p.stats.AddTimeout()
		return nil, fmt.Errorf("%s (%v): %w", op, timeout, ErrTimeout)
	}
	return fs, err
}

// PollForFrames returns the next frame set if one is already queued.
func (p *Pipeline) PollForFrames() (*FrameSet, bool, error) {
	const op = "poll for frames"
	if s := p.State(); s != Streaming {
		return nil, false, fmt.Errorf("%s: %w", op, ErrNotStreaming)
	}
	var (
		h  native.Handle
		ok bool
	)
	err := p.g.use(func(ph native.Handle) error {
		var e *native.Error
		h, ok, e = p.ctx.api.PipelinePollForFrames(ph)
		return translate(op, e)
	})
	return p.deliver(op, h, ok, err)
}

// deliver turns the outcome of a native wait into a FrameSet. A frame that
// arrives after a concurrent Stop is released and reported as
// ErrNotStreaming.
func (p *Pipeline) deliver(op string, h native.Handle, ok bool, err error) (*FrameSet, bool, error) {
	if p.State() != Streaming {
		if ok && h != 0 {
			p.ctx.api.ReleaseFrame(h)
		}
		return nil, false, fmt.Errorf("%s: %w", op, ErrNotStreaming)
	}
	if err != nil {
		p.stats.AddError()
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if h == 0 {
		p.stats.AddError()
		return nil, false, nullHandle(op)
	}
	fs, err := newFrameSet(p.ctx, h)
	if err != nil {
		p.stats.AddError()
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	p.stats.AddFrameSet(fs.Timestamp(), fs.FrameNumber())
	return fs, true, nil
}

package camera

import (
	"fmt"
	"iter"
	"runtime"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/native"
)

// FrameSet is the bundle of frames captured in one cycle. Members share
// the set's timestamp and frame counter.
//
// Frame returns an independent reference that outlives the set; All and
// Member return borrowed frames that become unusable after Close.
type FrameSet struct {
	res    *owner
	frames []*Frame
	ts     float64
	number uint64
}

// newFrameSet takes ownership of a composite frame reference and extracts
// one reference per member. On failure everything taken is released.
func newFrameSet(ctx *Context, h native.Handle) (*FrameSet, error) {
	g, err := adoptFrame(ctx, h)
	if err != nil {
		return nil, err
	}
	fs := &FrameSet{res: &owner{self: g.guard}}
	if err := fs.extract(g); err != nil {
		fs.res.release()
		return nil, err
	}
	runtime.AddCleanup(fs, func(o *owner) { o.release() }, fs.res)
	return fs, nil
}

func (fs *FrameSet) extract(g *refCounted) error {
	api := g.ctx.api
	var members []native.Handle
	err := g.use(func(h native.Handle) error {
		n, e := api.EmbeddedFramesCount(h)
		if err := translate("count embedded frames", e); err != nil {
			return err
		}
		if fs.ts, e = api.FrameTimestamp(h); e != nil {
			return translate("get frame set timestamp", e)
		}
		if fs.number, e = api.FrameNumber(h); e != nil {
			return translate("get frame set number", e)
		}
		for i := 0; i < n; i++ {
			m, e := api.ExtractFrame(h, i)
			if err := translate("extract frame", e); err != nil {
				return err
			}
			if m == 0 {
				return nullHandle("extract frame")
			}
			members = append(members, m)
		}
		return nil
	})
	// Every extracted reference is tracked before any error is returned so
	// the caller's release covers it.
	var guards []*refCounted
	for i, m := range members {
		mg, aerr := adoptFrame(g.ctx, m)
		if aerr != nil {
			for _, rest := range members[i+1:] {
				api.ReleaseFrame(rest)
			}
			return aerr
		}
		if aerr := fs.res.deps.add(mg.guard); aerr != nil {
			return aerr
		}
		guards = append(guards, mg)
	}
	if err != nil {
		return err
	}
	for _, mg := range guards {
		f, err := newFrame(mg)
		if err != nil {
			return err
		}
		f.set = fs
		f.borrowed = true
		fs.frames = append(fs.frames, f)
	}
	return nil
}

// Len returns the number of member frames.
func (fs *FrameSet) Len() int { return len(fs.frames) }

// Timestamp returns the capture time in milliseconds.
func (fs *FrameSet) Timestamp() float64 { return fs.ts }

// FrameNumber returns the set's frame counter.
func (fs *FrameSet) FrameNumber() uint64 { return fs.number }

// All yields the member frames in SDK order. The frames are borrowed:
// iterating again yields the same frames without taking new references.
func (fs *FrameSet) All() iter.Seq[*Frame] {
	return func(yield func(*Frame) bool) {
		for _, f := range fs.frames {
			if !yield(f) {
				return
			}
		}
	}
}

// Member returns the borrowed frame of (stream, index). AnyIndex matches
// the first frame of stream.
func (fs *FrameSet) Member(stream kind.Stream, index int) (*Frame, bool) {
	for _, f := range fs.frames {
		if f.profile.Stream == stream && (index == AnyIndex || f.profile.Index == index) {
			return f, true
		}
	}
	return nil, false
}

// Frame returns an independent reference to the frame of (stream, index),
// or false if that stream is not in the set. The caller must Close it.
func (fs *FrameSet) Frame(stream kind.Stream, index int) (*Frame, bool, error) {
	m, ok := fs.Member(stream, index)
	if !ok {
		return nil, false, nil
	}
	f, err := m.Clone()
	if err != nil {
		return nil, false, fmt.Errorf("frame %s#%d: %w", stream, index, err)
	}
	return f, true, nil
}

// Depth returns the borrowed first depth frame.
func (fs *FrameSet) Depth() (DepthFrame, bool) {
	f, ok := fs.Member(kind.StreamDepth, AnyIndex)
	if !ok {
		return DepthFrame{}, false
	}
	d, err := f.AsDepth()
	return d, err == nil
}

// Color returns the borrowed first color frame.
func (fs *FrameSet) Color() (VideoFrame, bool) {
	f, ok := fs.Member(kind.StreamColor, AnyIndex)
	if !ok {
		return VideoFrame{}, false
	}
	return VideoFrame{f}, true
}

// Profiles returns the profiles of the member frames.
func (fs *FrameSet) Profiles() []StreamProfile {
	out := make([]StreamProfile, len(fs.frames))
	for i, f := range fs.frames {
		out[i] = f.profile
	}
	return out
}

// Close releases the set and its borrowed members. Frames obtained from
// Frame stay valid. Closing twice does nothing.
func (fs *FrameSet) Close() error {
	fs.res.release()
	return nil
}

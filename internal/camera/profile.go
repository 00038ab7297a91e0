package camera

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/native"
)

type (
	// Intrinsics are the projection parameters of a video stream.
	Intrinsics = native.Intrinsics
	// MotionIntrinsics are the calibration parameters of an IMU stream.
	MotionIntrinsics = native.MotionIntrinsics
	// OptionRange is the valid range of a sensor option.
	OptionRange = native.OptionRange
	// Pose is a 6-DOF sample of a pose stream.
	Pose = native.Pose
	// StreamRequest is one requested stream of a PipelineConfig.
	StreamRequest = native.StreamRequest
)

// StreamKey identifies a stream within a device.
type StreamKey struct {
	Stream kind.Stream
	Index  int
}

func (k StreamKey) String() string {
	return fmt.Sprintf("%s#%d", k.Stream, k.Index)
}

// profileRef is a lookup-only reference to a profile whose native memory
// belongs to owner (a profile list or a frame). It never releases.
type profileRef struct {
	ctx   *Context
	owner *guard
	h     native.Handle
}

func (r profileRef) use(fn func(native.API, native.Handle) error) error {
	if r.owner == nil {
		return fmt.Errorf("stream profile: %w", ErrReleased)
	}
	return r.owner.use(func(native.Handle) error {
		return fn(r.owner.ctx.api, r.h)
	})
}

// usePair holds both owners for the duration of fn. Profiles sharing an
// owner take its lock once.
func usePair(a, b profileRef, fn func(native.API, native.Handle, native.Handle) error) error {
	if a.owner == b.owner {
		return a.use(func(api native.API, ha native.Handle) error {
			return fn(api, ha, b.h)
		})
	}
	return a.use(func(api native.API, ha native.Handle) error {
		return b.use(func(_ native.API, hb native.Handle) error {
			return fn(api, ha, hb)
		})
	})
}

// StreamProfile describes one stream mode. It is a value; the native
// reference inside is valid while the list, frame or pipeline it came from
// is open. Intrinsics and extrinsics already read through the same Context
// remain available after that.
type StreamProfile struct {
	Stream    kind.Stream
	Format    kind.Format
	Index     int
	UniqueID  int
	Framerate int
	Width     int
	Height    int
	IsDefault bool

	ref profileRef
}

func readProfile(ctx *Context, owner *guard, h native.Handle) (StreamProfile, error) {
	api := ctx.api
	d, e := api.StreamProfileData(h)
	if err := translate("get stream profile data", e); err != nil {
		return StreamProfile{}, err
	}
	p := StreamProfile{
		Stream:    d.Stream,
		Format:    d.Format,
		Index:     d.Index,
		UniqueID:  d.UniqueID,
		Framerate: d.Framerate,
		IsDefault: d.IsDefault,
		ref:       profileRef{ctx: ctx, owner: owner, h: h},
	}
	if d.Stream.IsVideo() {
		w, hgt, e := api.VideoStreamResolution(h)
		if err := translate("get video stream resolution", e); err != nil {
			return StreamProfile{}, err
		}
		p.Width, p.Height = w, hgt
	}
	return p, nil
}

// readProfileList reads every profile of a list guard.
func readProfileList(ctx *Context, list *guard) ([]StreamProfile, error) {
	var out []StreamProfile
	err := list.use(func(lh native.Handle) error {
		n, e := ctx.api.StreamProfileCount(lh)
		if err := translate("count stream profiles", e); err != nil {
			return err
		}
		out = make([]StreamProfile, 0, n)
		for i := 0; i < n; i++ {
			h, e := ctx.api.StreamProfileAt(lh, i)
			if err := translate("get stream profile", e); err != nil {
				return err
			}
			if h == 0 {
				return nullHandle("get stream profile")
			}
			p, err := readProfile(ctx, list, h)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// Key returns the (stream, index) pair of p.
func (p StreamProfile) Key() StreamKey {
	return StreamKey{Stream: p.Stream, Index: p.Index}
}

func (p StreamProfile) String() string {
	if p.Stream.IsVideo() {
		return fmt.Sprintf("%s %dx%d %s@%d", p.Key(), p.Width, p.Height, p.Format, p.Framerate)
	}
	return fmt.Sprintf("%s %s@%d", p.Key(), p.Format, p.Framerate)
}

// Satisfies reports whether p fulfils r. Index -1, zero sizes and rates,
// StreamAny and FormatAny match anything.
func (p StreamProfile) Satisfies(r StreamRequest) bool {
	switch {
	case r.Stream != kind.StreamAny && p.Stream != r.Stream:
		return false
	case r.Index >= 0 && p.Index != r.Index:
		return false
	case r.Width > 0 && p.Width != r.Width:
		return false
	case r.Height > 0 && p.Height != r.Height:
		return false
	case r.Format != kind.FormatAny && p.Format != r.Format:
		return false
	case r.Framerate > 0 && p.Framerate != r.Framerate:
		return false
	}
	return true
}

func (p StreamProfile) modeKey() intrinsicsKey {
	return intrinsicsKey{uid: p.UniqueID, width: p.Width, height: p.Height, format: p.Format}
}

// Intrinsics returns the projection parameters of a video profile.
func (p StreamProfile) Intrinsics() (Intrinsics, error) {
	if !p.Stream.IsVideo() {
		return Intrinsics{}, fmt.Errorf("intrinsics of %s: %w", p.Key(), ErrWrongStream)
	}
	if p.ref.ctx != nil {
		if in, ok := p.ref.ctx.cachedIntrinsics(p.modeKey()); ok {
			return in, nil
		}
	}
	var in Intrinsics
	err := p.ref.use(func(api native.API, h native.Handle) error {
		var e *native.Error
		in, e = api.VideoStreamIntrinsics(h)
		return translate("get video stream intrinsics", e)
	})
	if err != nil {
		return Intrinsics{}, err
	}
	p.ref.ctx.cacheIntrinsics(p.modeKey(), in)
	return in, nil
}

// MotionIntrinsics returns the calibration of an IMU profile.
func (p StreamProfile) MotionIntrinsics() (MotionIntrinsics, error) {
	if !p.Stream.IsMotion() {
		return MotionIntrinsics{}, fmt.Errorf("motion intrinsics of %s: %w", p.Key(), ErrWrongStream)
	}
	var in MotionIntrinsics
	err := p.ref.use(func(api native.API, h native.Handle) error {
		var e *native.Error
		in, e = api.MotionStreamIntrinsics(h)
		return translate("get motion intrinsics", e)
	})
	return in, err
}

// ExtrinsicsTo returns the transform from p's origin to to's origin.
func (p StreamProfile) ExtrinsicsTo(to StreamProfile) (Extrinsics, error) {
	if p.UniqueID == to.UniqueID {
		return Identity, nil
	}
	ctx := p.ref.ctx
	if ctx == nil {
		ctx = to.ref.ctx
	}
	if ctx != nil {
		if e, ok := ctx.cachedExtrinsics(p.UniqueID, to.UniqueID); ok {
			return e, nil
		}
	}
	var ex Extrinsics
	err := usePair(p.ref, to.ref, func(api native.API, from, dst native.Handle) error {
		e, ne := api.Extrinsics(from, dst)
		if err := translate("get extrinsics", ne); err != nil {
			return err
		}
		ex = Extrinsics(e)
		return nil
	})
	if err != nil {
		return Extrinsics{}, fmt.Errorf("extrinsics %s -> %s: %w", p.Key(), to.Key(), err)
	}
	ctx.cacheExtrinsics(p.UniqueID, to.UniqueID, ex)
	return ex, nil
}

// Extrinsics is the rigid transform between two stream origins. Rotation is
// a 3x3 matrix in column-major order; Translation is in metres.
type Extrinsics struct {
	Rotation    [9]float32
	Translation [3]float32
}

// Identity is the transform between a stream and itself.
var Identity = Extrinsics{Rotation: [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}}

// RigidTolerance bounds the deviation accepted by IsRigid and IsIdentity.
const RigidTolerance = 1e-3

// Transform maps a point from the source origin to the target origin.
func (e Extrinsics) Transform(p [3]float32) [3]float32 {
	r := &e.Rotation
	return [3]float32{
		r[0]*p[0] + r[3]*p[1] + r[6]*p[2] + e.Translation[0],
		r[1]*p[0] + r[4]*p[1] + r[7]*p[2] + e.Translation[1],
		r[2]*p[0] + r[5]*p[1] + r[8]*p[2] + e.Translation[2],
	}
}

// Matrix returns e as a 4x4 homogeneous matrix.
func (e Extrinsics) Matrix() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			m.Set(r, c, float64(e.Rotation[c*3+r]))
		}
		m.Set(c, 3, float64(e.Translation[c]))
	}
	m.Set(3, 3, 1)
	return m
}

// ExtrinsicsFromMatrix converts a 4x4 homogeneous rigid transform.
func ExtrinsicsFromMatrix(m mat.Matrix) (Extrinsics, error) {
	if r, c := m.Dims(); r != 4 || c != 4 {
		return Extrinsics{}, fmt.Errorf("extrinsics matrix is %dx%d, want 4x4", r, c)
	}
	var e Extrinsics
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			e.Rotation[c*3+r] = float32(m.At(r, c))
		}
		e.Translation[c] = float32(m.At(c, 3))
	}
	if m.At(3, 0) != 0 || m.At(3, 1) != 0 || m.At(3, 2) != 0 || math.Abs(m.At(3, 3)-1) > RigidTolerance {
		return Extrinsics{}, fmt.Errorf("extrinsics matrix last row is not [0 0 0 1]")
	}
	if !e.IsRigid() {
		return Extrinsics{}, fmt.Errorf("extrinsics matrix is not a rigid transform")
	}
	return e, nil
}

func (e Extrinsics) rotation() *mat.Dense {
	r := mat.NewDense(3, 3, nil)
	for c := 0; c < 3; c++ {
		for row := 0; row < 3; row++ {
			r.Set(row, c, float64(e.Rotation[c*3+row]))
		}
	}
	return r
}

// IsRigid reports whether the rotation is orthonormal with determinant 1,
// i.e. a proper rotation without scale or reflection.
func (e Extrinsics) IsRigid() bool {
	r := e.rotation()
	if math.Abs(mat.Det(r)-1) > RigidTolerance {
		return false
	}
	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	return mat.EqualApprox(&rtr, eye3(), RigidTolerance)
}

// IsIdentity reports whether e leaves points unchanged.
func (e Extrinsics) IsIdentity() bool {
	return mat.EqualApprox(e.Matrix(), Identity.Matrix(), RigidTolerance)
}

// Inverse returns the transform from the target origin back to the source.
func (e Extrinsics) Inverse() Extrinsics {
	r := e.rotation()
	var rt mat.Dense
	rt.CloneFrom(r.T())
	t := mat.NewVecDense(3, []float64{float64(e.Translation[0]), float64(e.Translation[1]), float64(e.Translation[2])})
	var nt mat.VecDense
	nt.MulVec(&rt, t)
	nt.ScaleVec(-1, &nt)

	var out Extrinsics
	for c := 0; c < 3; c++ {
		for row := 0; row < 3; row++ {
			out.Rotation[c*3+row] = float32(rt.At(row, c))
		}
		out.Translation[c] = float32(nt.AtVec(c))
	}
	return out
}

// Then returns the transform applying e first and next second.
func (e Extrinsics) Then(next Extrinsics) Extrinsics {
	var m mat.Dense
	m.Mul(next.Matrix(), e.Matrix())
	var out Extrinsics
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			out.Rotation[c*3+r] = float32(m.At(r, c))
		}
		out.Translation[c] = float32(m.At(c, 3))
	}
	return out
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

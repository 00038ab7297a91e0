// Package processing computes data derived from captured frames: point
// clouds, texture coordinates and frames aligned to another stream's
// viewpoint. Every result is Go memory and stays valid after the source
// frames are closed.
package processing

import (
	"encoding/binary"
	"fmt"
	"iter"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/depthcam/internal/camera"
)

// ErrUnsupportedAlignment is camera.ErrUnsupportedAlignment.
var ErrUnsupportedAlignment = camera.ErrUnsupportedAlignment

// Vertex is a point in metres in the coordinate system of the depth stream.
// The zero Vertex marks a pixel without depth.
type Vertex [3]float32

// TexCoord is a normalized (u, v) position in a color frame. Values outside
// [0, 1] fall outside that frame.
type TexCoord [2]float32

// PointCloud holds one vertex per depth pixel in row-major order, so the
// index of a vertex is y*Width+x in the source frame.
type PointCloud struct {
	Width       int
	Height      int
	Timestamp   float64
	FrameNumber uint64
	Vertices    []Vertex
	// TexCoords is nil until MapToColor fills one entry per vertex.
	TexCoords []TexCoord

	// Profile is the stream the vertices are expressed in.
	Profile camera.StreamProfile
}

// ComputePointCloud deprojects every pixel of depth using the depth
// stream's intrinsics. Pixels without depth become the zero Vertex; none
// are dropped.
func ComputePointCloud(depth camera.DepthFrame) (*PointCloud, error) {
	profile := depth.Profile()
	in, err := profile.Intrinsics()
	if err != nil {
		return nil, fmt.Errorf("point cloud: %w", err)
	}
	if err := CanDeproject(in); err != nil {
		return nil, fmt.Errorf("point cloud: %w", err)
	}

	w, h := depth.Width(), depth.Height()
	units := depth.Units()
	pc := &PointCloud{
		Width:       w,
		Height:      h,
		Timestamp:   depth.Timestamp(),
		FrameNumber: depth.FrameNumber(),
		Vertices:    make([]Vertex, w*h),
		Profile:     profile,
	}
	stride := depth.Stride()
	err = depth.WithData(func(b []byte) error {
		for y := 0; y < h; y++ {
			row := b[y*stride:]
			for x := 0; x < w; x++ {
				raw := binary.LittleEndian.Uint16(row[2*x:])
				if raw == 0 {
					continue
				}
				pc.Vertices[y*w+x] = Deproject(in, [2]float32{float32(x), float32(y)}, float32(raw)*units)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("point cloud: %w", err)
	}
	return pc, nil
}

// MapToColor returns a copy of pc with a texture coordinate per vertex,
// projecting each vertex through the depth to color extrinsics and the
// color intrinsics. Coordinates are not clamped. Vertices without depth get
// (0, 0).
func MapToColor(pc *PointCloud, color camera.VideoFrame) (*PointCloud, error) {
	to := color.Profile()
	in, err := to.Intrinsics()
	if err != nil {
		return nil, fmt.Errorf("map to color: %w", err)
	}
	ex, err := pc.Profile.ExtrinsicsTo(to)
	if err != nil {
		return nil, fmt.Errorf("map to color: %w", err)
	}

	out := *pc
	out.Vertices = append([]Vertex(nil), pc.Vertices...)
	out.TexCoords = make([]TexCoord, len(pc.Vertices))
	w, h := float32(in.Width), float32(in.Height)
	for i, v := range pc.Vertices {
		if v[2] == 0 {
			continue
		}
		px := Project(in, ex.Transform(v))
		out.TexCoords[i] = TexCoord{px[0] / w, px[1] / h}
	}
	return &out, nil
}

// Valid yields the index and value of every vertex with depth.
func (pc *PointCloud) Valid() iter.Seq2[int, Vertex] {
	return func(yield func(int, Vertex) bool) {
		for i, v := range pc.Vertices {
			if v[2] == 0 {
				continue
			}
			if !yield(i, v) {
				return
			}
		}
	}
}

// ValidCount returns the number of vertices with depth.
func (pc *PointCloud) ValidCount() int {
	n := 0
	for range pc.Valid() {
		n++
	}
	return n
}

// Bounds returns the axis-aligned box enclosing every vertex with depth,
// or false when there is none.
func (pc *PointCloud) Bounds() (r3.Box, bool) {
	var box r3.Box
	found := false
	for _, v := range pc.Valid() {
		p := r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
		if !found {
			box = r3.Box{Min: p, Max: p}
			found = true
			continue
		}
		box.Min = r3.Vec{X: min(box.Min.X, p.X), Y: min(box.Min.Y, p.Y), Z: min(box.Min.Z, p.Z)}
		box.Max = r3.Vec{X: max(box.Max.X, p.X), Y: max(box.Max.Y, p.Y), Z: max(box.Max.Z, p.Z)}
	}
	return box, found
}

// InFrame reports whether the texture coordinate of vertex i lies inside
// the color frame.
func (pc *PointCloud) InFrame(i int) bool {
	if i >= len(pc.TexCoords) {
		return false
	}
	t := pc.TexCoords[i]
	return pc.Vertices[i][2] != 0 && t[0] >= 0 && t[0] <= 1 && t[1] >= 0 && t[1] <= 1
}

package processing

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/depthcam/internal/fsutil"
	"github.com/banshee-data/depthcam/internal/monitoring"
	"github.com/banshee-data/depthcam/internal/security"
)

// PLYOptions selects how a point cloud is written.
type PLYOptions struct {
	// Binary writes binary_little_endian instead of ascii.
	Binary bool
	// SkipInvalid omits vertices without depth. The index correspondence
	// with the depth frame is lost.
	SkipInvalid bool
}

// WritePLY writes pc as a PLY vertex list with x, y, z and, when pc has
// texture coordinates, u and v.
func WritePLY(w io.Writer, pc *PointCloud, opts PLYOptions) error {
	n := len(pc.Vertices)
	if opts.SkipInvalid {
		n = pc.ValidCount()
	}
	textured := pc.TexCoords != nil

	bw := bufio.NewWriter(w)
	format := "ascii"
	if opts.Binary {
		format = "binary_little_endian"
	}
	fmt.Fprintf(bw, "ply\nformat %s 1.0\n", format)
	fmt.Fprintf(bw, "comment frame %d timestamp %.3f\n", pc.FrameNumber, pc.Timestamp)
	fmt.Fprintf(bw, "element vertex %d\n", n)
	bw.WriteString("property float x\nproperty float y\nproperty float z\n")
	if textured {
		bw.WriteString("property float u\nproperty float v\n")
	}
	bw.WriteString("end_header\n")

	var rec [5 * 4]byte
	for i, v := range pc.Vertices {
		if opts.SkipInvalid && v[2] == 0 {
			continue
		}
		vals := []float32{v[0], v[1], v[2]}
		if textured {
			vals = append(vals, pc.TexCoords[i][0], pc.TexCoords[i][1])
		}
		if opts.Binary {
			for j, f := range vals {
				binary.LittleEndian.PutUint32(rec[4*j:], math.Float32bits(f))
			}
			bw.Write(rec[:4*len(vals)])
			continue
		}
		for j, f := range vals {
			if j > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%g", f)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Exporter writes point clouds as PLY files into one directory.
type Exporter struct {
	fs      fsutil.FileSystem
	dir     string
	prefix  string
	options PLYOptions
}

// NewExporter creates dir if needed and returns an exporter naming files
// <prefix>-<frame number>.ply.
func NewExporter(fs fsutil.FileSystem, dir, prefix string, opts PLYOptions) (*Exporter, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &Exporter{fs: fs, dir: dir, prefix: prefix, options: opts}, nil
}

// Export writes pc and returns the file path.
func (e *Exporter) Export(pc *PointCloud) (string, error) {
	path, err := security.OutputPath(e.dir, fmt.Sprintf("%s-%06d", e.prefix, pc.FrameNumber), ".ply")
	if err != nil {
		return "", err
	}
	f, err := e.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := WritePLY(f, pc, e.options); err != nil {
		f.Close()
		e.fs.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	monitoring.Debugf("exported %d points to %s", len(pc.Vertices), path)
	return path, nil
}

// Dir returns the export directory.
func (e *Exporter) Dir() string { return e.dir }

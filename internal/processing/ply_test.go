package processing

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthcam/internal/fsutil"
)

func smallCloud() *PointCloud {
	return &PointCloud{
		Width:       3,
		Height:      1,
		Timestamp:   1033.5,
		FrameNumber: 7,
		Vertices:    []Vertex{{}, {0.25, -0.5, 1}, {0.5, 0, 2}},
	}
}

func TestWritePLYASCII(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WritePLY(&buf, smallCloud(), PLYOptions{}))

	want := strings.Join([]string{
		"ply",
		"format ascii 1.0",
		"comment frame 7 timestamp 1033.500",
		"element vertex 3",
		"property float x",
		"property float y",
		"property float z",
		"end_header",
		"0 0 0",
		"0.25 -0.5 1",
		"0.5 0 2",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWritePLYSkipInvalidTextured(t *testing.T) {
	t.Parallel()
	pc := smallCloud()
	pc.TexCoords = []TexCoord{{}, {0.5, 0.25}, {1.5, 0}}

	var buf bytes.Buffer
	require.NoError(t, WritePLY(&buf, pc, PLYOptions{SkipInvalid: true}))
	out := buf.String()

	assert.Contains(t, out, "element vertex 2\n")
	assert.Contains(t, out, "property float u\nproperty float v\nend_header\n")
	body := out[strings.Index(out, "end_header\n")+len("end_header\n"):]
	assert.Equal(t, "0.25 -0.5 1 0.5 0.25\n0.5 0 2 1.5 0\n", body)
}

func TestWritePLYBinary(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WritePLY(&buf, smallCloud(), PLYOptions{Binary: true}))

	out := buf.Bytes()
	header := []byte("end_header\n")
	i := bytes.Index(out, header)
	require.GreaterOrEqual(t, i, 0)
	assert.True(t, bytes.HasPrefix(out, []byte("ply\nformat binary_little_endian 1.0\n")))

	body := out[i+len(header):]
	require.Len(t, body, 3*3*4)
	read := func(n int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(body[4*n:])) }
	assert.Equal(t, float32(0.25), read(3))
	assert.Equal(t, float32(-0.5), read(4))
	assert.Equal(t, float32(2), read(8))
}

func TestExporter(t *testing.T) {
	t.Parallel()

	t.Run("os", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "clouds")
		fs := fsutil.OSFileSystem{}
		e, err := NewExporter(fs, dir, "D435 #1", PLYOptions{})
		require.NoError(t, err)
		assert.Equal(t, dir, e.Dir())

		path, err := e.Export(smallCloud())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "D435_1-000007.ply"), path)

		data, err := fs.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("ply\nformat ascii 1.0\n")))
	})

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		// Paths are validated against the real directory, the bytes go to
		// memory.
		dir := t.TempDir()
		fs := fsutil.NewMemoryFileSystem()
		e, err := NewExporter(fs, dir, "cloud", PLYOptions{Binary: true})
		require.NoError(t, err)

		path, err := e.Export(smallCloud())
		require.NoError(t, err)
		assert.True(t, fs.Exists(path))
		data, err := fs.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "binary_little_endian")
	})

	t.Run("missing directory", func(t *testing.T) {
		t.Parallel()
		e, err := NewExporter(fsutil.NewMemoryFileSystem(), filepath.Join(t.TempDir(), "absent"), "cloud", PLYOptions{})
		require.NoError(t, err)
		_, err = e.Export(smallCloud())
		assert.Error(t, err)
	})
}

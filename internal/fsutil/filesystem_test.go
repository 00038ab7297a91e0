package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func writeAll(t *testing.T, fsys FileSystem, name, content string) {
	t.Helper()
	w, err := fsys.Create(name)
	if err != nil {
		t.Fatalf("Create(%q): %v", name, err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// Both implementations must behave the same for the operations exporters
// rely on.
func TestFileSystems(t *testing.T) {
	impls := map[string]func(t *testing.T) (FileSystem, string){
		"os": func(t *testing.T) (FileSystem, string) {
			return OSFileSystem{}, t.TempDir()
		},
		"memory": func(t *testing.T) (FileSystem, string) {
			return NewMemoryFileSystem(), "/captures"
		},
	}

	for name, setup := range impls {
		t.Run(name, func(t *testing.T) {
			fsys, root := setup(t)
			dir := filepath.Join(root, "session", "clouds")
			if err := fsys.MkdirAll(dir, 0o755); err != nil {
				t.Fatalf("MkdirAll: %v", err)
			}
			if !fsys.Exists(dir) || !fsys.Exists(filepath.Join(root, "session")) {
				t.Fatal("MkdirAll did not create every level")
			}

			path := filepath.Join(dir, "frame-000001.ply")
			if fsys.Exists(path) {
				t.Fatal("file exists before Create")
			}
			writeAll(t, fsys, path, "ply\n")
			got, err := fsys.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if string(got) != "ply\n" {
				t.Errorf("ReadFile = %q, want %q", got, "ply\n")
			}

			writeAll(t, fsys, path, "x")
			if got, _ := fsys.ReadFile(path); string(got) != "x" {
				t.Errorf("Create did not truncate: %q", got)
			}

			if err := fsys.Remove(dir); err == nil {
				t.Error("removed a directory holding files")
			}
			if err := fsys.Remove(path); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if fsys.Exists(path) {
				t.Error("file still exists after Remove")
			}
			if err := fsys.Remove(dir); err != nil {
				t.Errorf("Remove empty dir: %v", err)
			}

			_, err = fsys.ReadFile(path)
			if !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("ReadFile of removed file: %v, want ErrNotExist", err)
			}
			if err := fsys.Remove(path); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("Remove of missing file: %v, want ErrNotExist", err)
			}
		})
	}
}

func TestMemoryFileSystem_ContentsOnClose(t *testing.T) {
	m := NewMemoryFileSystem()
	w, err := m.Create("/a/b.txt")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("hello"))

	if got, _ := m.ReadFile("/a/b.txt"); len(got) != 0 {
		t.Errorf("contents visible before Close: %q", got)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.ReadFile("/a/b.txt"); string(got) != "hello" {
		t.Errorf("ReadFile = %q", got)
	}

	if _, err := w.Write([]byte("more")); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("Write after Close: %v", err)
	}
	if err := w.Close(); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("second Close: %v", err)
	}
}

func TestMemoryFileSystem_Isolation(t *testing.T) {
	m := NewMemoryFileSystem()
	data := []byte("original")
	m.WriteFile("/cfg.json", data)
	data[0] = 'X'

	got, _ := m.ReadFile("/cfg.json")
	if string(got) != "original" {
		t.Errorf("stored data aliased the input: %q", got)
	}
	got[0] = 'Y'
	if again, _ := m.ReadFile("/cfg.json"); string(again) != "original" {
		t.Errorf("returned data aliased storage: %q", again)
	}
}

func TestMemoryFileSystem_PathCleaning(t *testing.T) {
	m := NewMemoryFileSystem()
	m.WriteFile("/out/./x/../frame.ply", []byte("1"))
	if !m.Exists("/out/frame.ply") {
		t.Error("cleaned path not found")
	}
}

func TestMemoryFileSystem_Conflicts(t *testing.T) {
	m := NewMemoryFileSystem()
	m.WriteFile("/out", []byte("file"))
	if err := m.MkdirAll("/out/sub", 0o755); !errors.Is(err, fs.ErrExist) {
		t.Errorf("MkdirAll through a file: %v", err)
	}

	if err := m.MkdirAll("/dir", 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create("/dir"); !errors.Is(err, fs.ErrExist) {
		t.Errorf("Create over a directory: %v", err)
	}
}

func TestMemoryFileSystem_Files(t *testing.T) {
	m := NewMemoryFileSystem()
	m.WriteFile("/out/b.ply", nil)
	m.WriteFile("/out/a.ply", nil)
	m.WriteFile("/out/sub/c.png", nil)
	m.WriteFile("/outside.ply", nil)

	got := m.Files("/out")
	want := []string{"/out/a.ply", "/out/b.ply", "/out/sub/c.png"}
	if len(got) != len(want) {
		t.Fatalf("Files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Files[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

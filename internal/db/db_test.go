package db

import (
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEmbeddedMigrations(t *testing.T) {
	migFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS: %v", err)
	}
	ups, err := fs.Glob(migFS, "*.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	downs, _ := fs.Glob(migFS, "*.down.sql")
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Errorf("got %d up and %d down migrations", len(ups), len(downs))
	}

	latest, err := LatestMigrationVersion()
	if err != nil {
		t.Fatalf("LatestMigrationVersion: %v", err)
	}
	if latest != 2 {
		t.Errorf("latest version = %d, want 2", latest)
	}
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	latest, _ := LatestMigrationVersion()
	if version != latest || dirty {
		t.Errorf("version = %d dirty = %v, want %d clean", version, dirty, latest)
	}

	// Running again is a no-op.
	if err := db.MigrateUp(); err != nil {
		t.Errorf("second MigrateUp: %v", err)
	}
}

func TestMigrateDownAndUp(t *testing.T) {
	db := newTestDB(t)

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	if v, _, _ := db.MigrateVersion(); v != 1 {
		t.Fatalf("version after down = %d, want 1", v)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('frames') WHERE name = 'ply_path'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Error("ply_path still present after rolling back")
	}

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	if v, _, _ := db.MigrateVersion(); v != 2 {
		t.Errorf("version after up = %d, want 2", v)
	}
}

func TestCaptureLogRoundTrip(t *testing.T) {
	db := newTestDB(t)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{
		DeviceName: "Intel RealSense D435I",
		Serial:     "841512070001",
		Firmware:   "5.13.0.50",
		StartedAt:  start,
		Streams: []SessionStream{
			{Stream: "depth", Index: 0, Format: "z16", Width: 640, Height: 480, FPS: 30, UniqueID: 1},
			{Stream: "color", Index: 0, Format: "rgb8", Width: 640, Height: 480, FPS: 30, UniqueID: 4},
		},
	}
	if err := db.StartSession(s); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if s.ID == "" {
		t.Fatal("StartSession did not assign an ID")
	}

	for n := uint64(1); n <= 3; n++ {
		r := FrameRecord{SessionID: s.ID, FrameNumber: n, TimestampMs: 1000 + float64(n-1)*33.333, Domain: "hardware_clock", Members: 2}
		if n == 2 {
			r.ValidPoints = intPtr(1234)
			r.PLYPath = strPtr("/captures/cloud-000002.ply")
		}
		if err := db.RecordFrame(r); err != nil {
			t.Fatalf("RecordFrame %d: %v", n, err)
		}
	}
	end := start.Add(2 * time.Second)
	if err := db.EndSession(s.ID, end, SessionTotals{Frames: 3, Timeouts: 1}); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	got, err := db.Session(s.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if diff := cmp.Diff(s.Streams, got.Streams); diff != "" {
		t.Errorf("streams mismatch (-want +got):\n%s", diff)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(end) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, end)
	}
	if got.Frames != 3 || got.Timeouts != 1 || got.Errors != 0 {
		t.Errorf("totals = %d/%d/%d", got.Frames, got.Timeouts, got.Errors)
	}
	if got.ConfigJSON != "{}" {
		t.Errorf("ConfigJSON = %q, want {}", got.ConfigJSON)
	}

	frames, err := db.Frames(s.ID, 10)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[0].FrameNumber != 1 || frames[0].ValidPoints != nil || frames[0].PLYPath != nil {
		t.Errorf("frame 1 = %+v", frames[0])
	}
	if frames[1].ValidPoints == nil || *frames[1].ValidPoints != 1234 {
		t.Errorf("frame 2 valid points = %v", frames[1].ValidPoints)
	}
	if frames[1].PLYPath == nil || *frames[1].PLYPath != "/captures/cloud-000002.ply" {
		t.Errorf("frame 2 ply path = %v", frames[1].PLYPath)
	}

	limited, _ := db.Frames(s.ID, 2)
	if len(limited) != 2 {
		t.Errorf("limit ignored: got %d frames", len(limited))
	}
}

func TestSessionsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := db.StartSession(&Session{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatal(err)
		}
	}
	sessions, err := db.Sessions(2)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	var ids []string
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	if diff := cmp.Diff([]string{"c", "b"}, ids); diff != "" {
		t.Errorf("Sessions order (-want +got):\n%s", diff)
	}
	if sessions[0].EndedAt != nil {
		t.Error("open session has an end time")
	}
}

func TestNotFound(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.Session("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Session: %v, want ErrNotFound", err)
	}
	if err := db.EndSession("missing", time.Now(), SessionTotals{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("EndSession: %v, want ErrNotFound", err)
	}
	if err := db.DeleteSession("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteSession: %v, want ErrNotFound", err)
	}
}

func TestForeignKeys(t *testing.T) {
	db := newTestDB(t)

	if err := db.RecordFrame(FrameRecord{SessionID: "nobody", FrameNumber: 1, Members: 1}); err == nil {
		t.Error("recorded a frame for a missing session")
	}

	s := &Session{Streams: []SessionStream{{Stream: "depth", Format: "z16", FPS: 30, UniqueID: 1}}}
	if err := db.StartSession(s); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordFrame(FrameRecord{SessionID: s.ID, FrameNumber: 1, Members: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteSession(s.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	for _, table := range []string{"session_streams", "frames"} {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after deleting the session", table, n)
		}
	}
}

func TestDuplicateStreamRollsBack(t *testing.T) {
	db := newTestDB(t)
	st := SessionStream{Stream: "depth", Format: "z16", FPS: 30, UniqueID: 1}
	s := &Session{ID: "dup", Streams: []SessionStream{st, st}}
	if err := db.StartSession(s); err == nil {
		t.Fatal("expected primary key violation")
	}
	if _, err := db.Session("dup"); !errors.Is(err, ErrNotFound) {
		t.Errorf("partial session left behind: %v", err)
	}
}

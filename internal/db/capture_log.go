package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one run of a pipeline from Start to Stop.
type Session struct {
	ID         string          `json:"session_id"`
	DeviceName string          `json:"device_name"`
	Serial     string          `json:"serial"`
	Firmware   string          `json:"firmware"`
	ConfigJSON string          `json:"config_json"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Frames     int64           `json:"frames"`
	Timeouts   int64           `json:"timeouts"`
	Errors     int64           `json:"errors"`
	Streams    []SessionStream `json:"streams,omitempty"`
}

// SessionStream is one active stream of a session.
type SessionStream struct {
	Stream   string `json:"stream"`
	Index    int    `json:"index"`
	Format   string `json:"format"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FPS      int    `json:"fps"`
	UniqueID int    `json:"unique_id"`
}

// FrameRecord is one delivered frame set.
type FrameRecord struct {
	SessionID   string    `json:"session_id"`
	FrameNumber uint64    `json:"frame_number"`
	TimestampMs float64   `json:"timestamp_ms"`
	Domain      string    `json:"domain"`
	Members     int       `json:"members"`
	RecordedAt  time.Time `json:"recorded_at"`
	ValidPoints *int      `json:"valid_points,omitempty"`
	PLYPath     *string   `json:"ply_path,omitempty"`
}

// SessionTotals are the counters written when a session ends.
type SessionTotals struct {
	Frames   int64
	Timeouts int64
	Errors   int64
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}

// StartSession inserts s and its streams. An empty ID is replaced with a
// new UUID and a zero StartedAt with the current time.
func (db *DB) StartSession(s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	if s.ConfigJSON == "" {
		s.ConfigJSON = "{}"
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO sessions (
			session_id, device_name, serial, firmware, config_json, started_unix
		) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.DeviceName, s.Serial, s.Firmware, s.ConfigJSON, unixSeconds(s.StartedAt),
	); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	for _, st := range s.Streams {
		if _, err := tx.Exec(`INSERT INTO session_streams (
				session_id, stream, stream_index, format, width, height, fps, unique_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, st.Stream, st.Index, st.Format, st.Width, st.Height, st.FPS, st.UniqueID,
		); err != nil {
			return fmt.Errorf("failed to insert stream %s#%d: %w", st.Stream, st.Index, err)
		}
	}
	return tx.Commit()
}

// RecordFrame appends a frame set to its session.
func (db *DB) RecordFrame(r FrameRecord) error {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	_, err := db.Exec(`INSERT INTO frames (
			session_id, frame_number, timestamp_ms, domain, members, recorded_unix, valid_points, ply_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, int64(r.FrameNumber), r.TimestampMs, r.Domain, r.Members, unixSeconds(r.RecordedAt),
		r.ValidPoints, r.PLYPath,
	)
	if err != nil {
		return fmt.Errorf("failed to record frame %d: %w", r.FrameNumber, err)
	}
	return nil
}

// EndSession stamps the end time and final counters of a session.
func (db *DB) EndSession(id string, end time.Time, totals SessionTotals) error {
	res, err := db.Exec(`UPDATE sessions
		SET ended_unix = ?, frames = ?, timeouts = ?, errors = ?
		WHERE session_id = ?`,
		unixSeconds(end), totals.Frames, totals.Timeouts, totals.Errors, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// Session returns one session with its streams.
func (db *DB) Session(id string) (*Session, error) {
	row := db.QueryRow(`SELECT session_id, device_name, serial, firmware, config_json,
			started_unix, ended_unix, frames, timeouts, errors
		FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`SELECT stream, stream_index, format, width, height, fps, unique_id
		FROM session_streams WHERE session_id = ? ORDER BY unique_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var st SessionStream
		if err := rows.Scan(&st.Stream, &st.Index, &st.Format, &st.Width, &st.Height, &st.FPS, &st.UniqueID); err != nil {
			return nil, err
		}
		s.Streams = append(s.Streams, st)
	}
	return s, rows.Err()
}

// Sessions returns the most recent sessions, newest first, without their
// streams.
func (db *DB) Sessions(limit int) ([]Session, error) {
	rows, err := db.Query(`SELECT session_id, device_name, serial, firmware, config_json,
			started_unix, ended_unix, frames, timeouts, errors
		FROM sessions ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s       Session
		started float64
		ended   sql.NullFloat64
	)
	if err := row.Scan(&s.ID, &s.DeviceName, &s.Serial, &s.Firmware, &s.ConfigJSON,
		&started, &ended, &s.Frames, &s.Timeouts, &s.Errors); err != nil {
		return nil, err
	}
	s.StartedAt = fromUnixSeconds(started)
	if ended.Valid {
		t := fromUnixSeconds(ended.Float64)
		s.EndedAt = &t
	}
	return &s, nil
}

// Frames returns the frames of a session in delivery order, at most limit.
func (db *DB) Frames(sessionID string, limit int) ([]FrameRecord, error) {
	rows, err := db.Query(`SELECT frame_number, timestamp_ms, domain, members, recorded_unix, valid_points, ply_path
		FROM frames WHERE session_id = ? ORDER BY rowid LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []FrameRecord
	for rows.Next() {
		var (
			r        = FrameRecord{SessionID: sessionID}
			number   int64
			recorded float64
			valid    sql.NullInt64
			ply      sql.NullString
		)
		if err := rows.Scan(&number, &r.TimestampMs, &r.Domain, &r.Members, &recorded, &valid, &ply); err != nil {
			return nil, err
		}
		r.FrameNumber = uint64(number)
		r.RecordedAt = fromUnixSeconds(recorded)
		if valid.Valid {
			v := int(valid.Int64)
			r.ValidPoints = &v
		}
		if ply.Valid {
			r.PLYPath = &ply.String
		}
		frames = append(frames, r)
	}
	return frames, rows.Err()
}

// DeleteSession removes a session and, through the foreign keys, its
// streams and frames.
func (db *DB) DeleteSession(id string) error {
	res, err := db.Exec(`DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

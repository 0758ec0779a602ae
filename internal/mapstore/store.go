// Package mapstore persists reduced sky maps in SQLite.
//
// One database file holds one map product: hit counts, Stokes weights,
// and run metadata. Writes are upserts, so a partial write touches only
// the supplied pixels and leaves the rest of the stored map intact.
// Reads return the full pixel range, with never-written pixels as zero.
package mapstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/star/scanmap/internal/skymap"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (meta, pixels, weights)
const currentSchemaVersion = 1

// ErrNoMeta is returned when reading a database whose metadata was never
// written.
var ErrNoMeta = errors.New("mapstore: missing run metadata")

// Metadata describes the map product stored alongside the pixel data.
type Metadata struct {
	Scheme    string // pixelization scheme tag
	Rings     int64  // pixelization resolution
	NPix      int64  // total pixels addressed by the scheme
	RunID     string // simulation run UUID
	Coord     string // coordinate system tag ("E", "C", "G")
	CreatedAt time.Time
}

// Store is a handle on one map database.
type Store struct {
	db *sql.DB
}

// Open creates or opens a map database at the given path.
//
// The connection uses WAL journaling, NORMAL synchronous mode, a
// 5-second busy timeout, and a single connection so SQLite never sees
// concurrent writers. Opening an existing database is idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening map database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to map database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("map database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("setting user_version: %w", err)
	}
	return nil
}

// WriteMeta stores run metadata, replacing any previous values.
func (s *Store) WriteMeta(ctx context.Context, md Metadata) error {
	rows := [][2]string{
		{"scheme", md.Scheme},
		{"rings", strconv.FormatInt(md.Rings, 10)},
		{"npix", strconv.FormatInt(md.NPix, 10)},
		{"run_id", md.RunID},
		{"coord", md.Coord},
		{"created_at", md.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write meta: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, kv := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("write meta %s: %w", kv[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write meta: commit: %w", err)
	}
	return nil
}

// ReadMeta loads the run metadata. ErrNoMeta is returned for a database
// whose metadata was never written.
func (s *Store) ReadMeta(ctx context.Context) (Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return Metadata{}, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Metadata{}, fmt.Errorf("read meta: %w", err)
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return Metadata{}, fmt.Errorf("read meta: %w", err)
	}
	if len(kv) == 0 {
		return Metadata{}, ErrNoMeta
	}

	md := Metadata{
		Scheme: kv["scheme"],
		RunID:  kv["run_id"],
		Coord:  kv["coord"],
	}
	if md.Rings, err = strconv.ParseInt(kv["rings"], 10, 64); err != nil {
		return Metadata{}, fmt.Errorf("read meta rings: %w", err)
	}
	if md.NPix, err = strconv.ParseInt(kv["npix"], 10, 64); err != nil {
		return Metadata{}, fmt.Errorf("read meta npix: %w", err)
	}
	if md.CreatedAt, err = time.Parse(time.RFC3339Nano, kv["created_at"]); err != nil {
		return Metadata{}, fmt.Errorf("read meta created_at: %w", err)
	}
	return md, nil
}

// WriteHits upserts every nonzero pixel of the hit map. Stored pixels
// absent from m keep their previous values.
func (s *Store) WriteHits(ctx context.Context, m *skymap.HitMap) error {
	if m == nil {
		return errors.New("write hits: nil map")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write hits: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pixels (pixel, hits) VALUES (?, ?)
		ON CONFLICT(pixel) DO UPDATE SET hits = excluded.hits
	`)
	if err != nil {
		return fmt.Errorf("write hits: prepare: %w", err)
	}
	defer stmt.Close()

	var execErr error
	m.Visit(func(pix, hits int64) {
		if execErr != nil {
			return
		}
		if _, err := stmt.ExecContext(ctx, pix, hits); err != nil {
			execErr = fmt.Errorf("write hits pixel %d: %w", pix, err)
		}
	})
	if execErr != nil {
		return execErr
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write hits: commit: %w", err)
	}
	return nil
}

// WriteStokes upserts every hit pixel of the Stokes map, one row per
// channel. Stored pixels absent from m keep their previous values.
func (s *Store) WriteStokes(ctx context.Context, m *skymap.StokesMap) error {
	if m == nil {
		return errors.New("write weights: nil map")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write weights: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO weights (pixel, channel, value) VALUES (?, ?, ?)
		ON CONFLICT(pixel, channel) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("write weights: prepare: %w", err)
	}
	defer stmt.Close()

	var execErr error
	m.Visit(func(pix int64, i, q, u float64) {
		if execErr != nil {
			return
		}
		for ch, v := range [...]float64{i, q, u} {
			if _, err := stmt.ExecContext(ctx, pix, ch, v); err != nil {
				execErr = fmt.Errorf("write weights pixel %d channel %d: %w", pix, ch, err)
				return
			}
		}
	})
	if execErr != nil {
		return execErr
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write weights: commit: %w", err)
	}
	return nil
}

// ReadHits returns the stored hit counts as a dense slice indexed by
// pixel, sized from the stored metadata. Never-written pixels read as
// zero.
func (s *Store) ReadHits(ctx context.Context) ([]int64, error) {
	md, err := s.ReadMeta(ctx)
	if err != nil {
		return nil, err
	}

	hits := make([]int64, md.NPix)
	rows, err := s.db.QueryContext(ctx, `SELECT pixel, hits FROM pixels ORDER BY pixel`)
	if err != nil {
		return nil, fmt.Errorf("read hits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pix, n int64
		if err := rows.Scan(&pix, &n); err != nil {
			return nil, fmt.Errorf("read hits: %w", err)
		}
		if pix < 0 || pix >= md.NPix {
			return nil, fmt.Errorf("read hits: pixel %d outside map of %d pixels", pix, md.NPix)
		}
		hits[pix] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read hits: %w", err)
	}
	return hits, nil
}

// StokesPixel is one pixel of the dense Stokes weight read-back.
type StokesPixel struct {
	I, Q, U float64
}

// ReadStokes returns the stored Stokes weights as a dense slice indexed
// by pixel, sized from the stored metadata. SQLite REAL is an IEEE-754
// double, so values round-trip bit-exact.
func (s *Store) ReadStokes(ctx context.Context) ([]StokesPixel, error) {
	md, err := s.ReadMeta(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]StokesPixel, md.NPix)
	rows, err := s.db.QueryContext(ctx, `SELECT pixel, channel, value FROM weights ORDER BY pixel, channel`)
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pix int64
		var ch int
		var v float64
		if err := rows.Scan(&pix, &ch, &v); err != nil {
			return nil, fmt.Errorf("read weights: %w", err)
		}
		if pix < 0 || pix >= md.NPix {
			return nil, fmt.Errorf("read weights: pixel %d outside map of %d pixels", pix, md.NPix)
		}
		switch ch {
		case 0:
			out[pix].I = v
		case 1:
			out[pix].Q = v
		case 2:
			out[pix].U = v
		default:
			return nil, fmt.Errorf("read weights: pixel %d has unknown channel %d", pix, ch)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	return out, nil
}

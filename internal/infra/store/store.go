// Package store persists user preferences and listening history in SQLite.
package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/osa030/tubebox/internal/domain/track"
)

const keyVolume = "volume"

// Default history caps.
const (
	DefaultRecentlyPlayedLimit = 50
	DefaultSearchHistoryLimit  = 10
)

// Store is a SQLite-backed preference and history store.
type Store struct {
	db           *sql.DB
	recentLimit  int
	historyLimit int
	now          func() time.Time
}

// Options configures history caps. Zero values fall back to the defaults.
type Options struct {
	RecentlyPlayedLimit int
	SearchHistoryLimit  int
}

// RecentEntry is a recently played track.
type RecentEntry struct {
	Track    track.Track
	PlayedAt time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// A single connection keeps ":memory:" databases consistent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to set pragma %q", pragma)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS recently_played (
			track_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			thumbnail_url TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			played_at INTEGER NOT NULL,
			seq INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS search_history (
			query TEXT PRIMARY KEY,
			seq INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_recently_played_seq ON recently_played(seq);
		CREATE INDEX IF NOT EXISTS idx_search_history_seq ON search_history(seq);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}

	s := &Store{
		db:           db,
		recentLimit:  opts.RecentlyPlayedLimit,
		historyLimit: opts.SearchHistoryLimit,
		now:          time.Now,
	}
	if s.recentLimit <= 0 {
		s.recentLimit = DefaultRecentlyPlayedLimit
	}
	if s.historyLimit <= 0 {
		s.historyLimit = DefaultSearchHistoryLimit
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadVolume returns the persisted volume. ok is false when none was saved.
func (s *Store) LoadVolume(ctx context.Context) (volume int, ok bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, keyVolume).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to load volume")
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, errors.Wrapf(err, "invalid stored volume %q", raw)
	}
	return v, true, nil
}

// SaveVolume persists the volume.
func (s *Store) SaveVolume(ctx context.Context, volume int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, keyVolume, strconv.Itoa(volume))
	if err != nil {
		return errors.Wrap(err, "failed to save volume")
	}
	return nil
}

// AddRecentlyPlayed moves t to the front of the recently played list,
// trimming the list to its cap.
func (s *Store) AddRecentlyPlayed(ctx context.Context, t track.Track) error {
	if t.ID == "" {
		return errors.New("track ID is required")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recently_played (track_id, title, artist, thumbnail_url, duration_ms, played_at, seq)
			VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM recently_played))
			ON CONFLICT(track_id) DO UPDATE SET
				title = excluded.title,
				artist = excluded.artist,
				thumbnail_url = excluded.thumbnail_url,
				duration_ms = excluded.duration_ms,
				played_at = excluded.played_at,
				seq = excluded.seq
		`, t.ID, t.Title, t.Artist, t.ThumbnailURL, t.Duration.Milliseconds(), s.now().Unix()); err != nil {
			return errors.Wrap(err, "failed to insert recently played")
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM recently_played WHERE track_id NOT IN (
				SELECT track_id FROM recently_played ORDER BY seq DESC LIMIT ?
			)
		`, s.recentLimit); err != nil {
			return errors.Wrap(err, "failed to trim recently played")
		}
		return nil
	})
}

// RecentlyPlayed returns the recently played tracks, most recent first.
func (s *Store) RecentlyPlayed(ctx context.Context) ([]RecentEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, title, artist, thumbnail_url, duration_ms, played_at
		FROM recently_played
		ORDER BY seq DESC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query recently played")
	}
	defer rows.Close()

	entries := make([]RecentEntry, 0)
	for rows.Next() {
		var (
			e          RecentEntry
			durationMs int64
			playedAt   int64
		)
		if err := rows.Scan(&e.Track.ID, &e.Track.Title, &e.Track.Artist, &e.Track.ThumbnailURL, &durationMs, &playedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan recently played")
		}
		e.Track.Duration = time.Duration(durationMs) * time.Millisecond
		e.PlayedAt = time.Unix(playedAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate recently played")
	}
	return entries, nil
}

// AddSearch records a query. Queries already in the history keep their place.
func (s *Store) AddSearch(ctx context.Context, query string) error {
	if query == "" {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO search_history (query, seq)
			VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM search_history))
		`, query)
		if err != nil {
			return errors.Wrap(err, "failed to insert search history")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM search_history WHERE query NOT IN (
				SELECT query FROM search_history ORDER BY seq DESC LIMIT ?
			)
		`, s.historyLimit); err != nil {
			return errors.Wrap(err, "failed to trim search history")
		}
		return nil
	})
}

// SearchHistory returns past queries, most recent first.
func (s *Store) SearchHistory(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT query FROM search_history ORDER BY seq DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query search history")
	}
	defer rows.Close()

	queries := make([]string, 0)
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, errors.Wrap(err, "failed to scan search history")
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate search history")
	}
	return queries, nil
}

// ClearSearchHistory removes all recorded queries.
func (s *Store) ClearSearchHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM search_history`); err != nil {
		return errors.Wrap(err, "failed to clear search history")
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

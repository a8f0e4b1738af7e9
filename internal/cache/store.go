package cache

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// querier abstracts *sql.DB and *sql.Tx for shared query logic.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// Store provides access to the movie and series library caches.
type Store struct {
	db *sql.DB
}

// NewStore creates a new cache store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Begin starts a transaction. The sync job runs each server's upsert
// batch and eviction inside one transaction so a partial pull never
// leaves the cache half-updated.
func (s *Store) Begin() (*Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a database transaction with the same methods as Store.
type Tx struct {
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed") {
		return ErrDuplicate
	}
	return err
}

func upsertMovie(q querier, e *MovieEntry) error {
	now := time.Now()
	_, err := q.Exec(`
		INSERT INTO movie_cache (server_id, tmdb_id, service_id, title, has_file, monitored, quality_profile, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id, tmdb_id) DO UPDATE SET
			service_id = excluded.service_id,
			title = excluded.title,
			has_file = excluded.has_file,
			monitored = excluded.monitored,
			quality_profile = excluded.quality_profile,
			updated_at = excluded.updated_at`,
		e.ServerID, e.TMDBID, e.ServiceID, e.Title, e.HasFile, e.Monitored, e.QualityProfile, now,
	)
	if err != nil {
		return fmt.Errorf("upsert movie cache %d/%d: %w", e.ServerID, e.TMDBID, mapSQLiteError(err))
	}
	e.UpdatedAt = now
	return nil
}

// UpsertMovie inserts or updates a movie cache entry, keyed by
// (server id, TMDB id). The key relationship is never rewritten, only
// the mutable fields.
func (s *Store) UpsertMovie(e *MovieEntry) error { return upsertMovie(s.db, e) }

// UpsertMovie inserts or updates a movie entry within a transaction.
func (t *Tx) UpsertMovie(e *MovieEntry) error { return upsertMovie(t.tx, e) }

func upsertSeries(q querier, e *SeriesEntry) error {
	now := time.Now()
	_, err := q.Exec(`
		INSERT INTO series_cache (server_id, tmdb_id, tvdb_id, service_id, title, episode_count, episode_file_count, monitored, quality_profile, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id, tmdb_id) DO UPDATE SET
			tvdb_id = excluded.tvdb_id,
			service_id = excluded.service_id,
			title = excluded.title,
			episode_count = excluded.episode_count,
			episode_file_count = excluded.episode_file_count,
			monitored = excluded.monitored,
			quality_profile = excluded.quality_profile,
			updated_at = excluded.updated_at`,
		e.ServerID, e.TMDBID, e.TVDBID, e.ServiceID, e.Title, e.EpisodeCount, e.EpisodeFileCount, e.Monitored, e.QualityProfile, now,
	)
	if err != nil {
		return fmt.Errorf("upsert series cache %d/%d: %w", e.ServerID, e.TMDBID, mapSQLiteError(err))
	}
	e.UpdatedAt = now
	return nil
}

// UpsertSeries inserts or updates a series cache entry.
func (s *Store) UpsertSeries(e *SeriesEntry) error { return upsertSeries(s.db, e) }

// UpsertSeries inserts or updates a series entry within a transaction.
func (t *Tx) UpsertSeries(e *SeriesEntry) error { return upsertSeries(t.tx, e) }

func evictStale(q querier, table string, serverID int64, seen []int64) (int64, error) {
	var result sql.Result
	var err error
	if len(seen) == 0 {
		result, err = q.Exec("DELETE FROM "+table+" WHERE server_id = ?", serverID)
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seen)), ",")
		args := make([]any, 0, len(seen)+1)
		args = append(args, serverID)
		for _, id := range seen {
			args = append(args, id)
		}
		result, err = q.Exec(
			"DELETE FROM "+table+" WHERE server_id = ? AND tmdb_id NOT IN ("+placeholders+")",
			args...)
	}
	if err != nil {
		return 0, fmt.Errorf("evict stale %s server %d: %w", table, serverID, mapSQLiteError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rows, nil
}

// EvictStaleMovies deletes movie entries for serverID whose TMDB id is
// not in seen (the set of ids returned by the server's latest full
// pull). Other servers' rows are untouched. Returns the evicted count.
func (s *Store) EvictStaleMovies(serverID int64, seen []int64) (int64, error) {
	return evictStale(s.db, "movie_cache", serverID, seen)
}

// EvictStaleMovies evicts within a transaction.
func (t *Tx) EvictStaleMovies(serverID int64, seen []int64) (int64, error) {
	return evictStale(t.tx, "movie_cache", serverID, seen)
}

// EvictStaleSeries deletes series entries for serverID not present in
// seen.
func (s *Store) EvictStaleSeries(serverID int64, seen []int64) (int64, error) {
	return evictStale(s.db, "series_cache", serverID, seen)
}

// EvictStaleSeries evicts within a transaction.
func (t *Tx) EvictStaleSeries(serverID int64, seen []int64) (int64, error) {
	return evictStale(t.tx, "series_cache", serverID, seen)
}

const movieColumns = "server_id, tmdb_id, service_id, title, has_file, monitored, quality_profile, updated_at"
const seriesColumns = "server_id, tmdb_id, tvdb_id, service_id, title, episode_count, episode_file_count, monitored, quality_profile, updated_at"

func scanMovie(row interface{ Scan(...any) error }) (*MovieEntry, error) {
	e := &MovieEntry{}
	err := row.Scan(&e.ServerID, &e.TMDBID, &e.ServiceID, &e.Title, &e.HasFile, &e.Monitored, &e.QualityProfile, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanSeries(row interface{ Scan(...any) error }) (*SeriesEntry, error) {
	e := &SeriesEntry{}
	err := row.Scan(&e.ServerID, &e.TMDBID, &e.TVDBID, &e.ServiceID, &e.Title, &e.EpisodeCount, &e.EpisodeFileCount, &e.Monitored, &e.QualityProfile, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetMovie retrieves one server's cache entry for a movie.
func (s *Store) GetMovie(serverID, tmdbID int64) (*MovieEntry, error) {
	e, err := scanMovie(s.db.QueryRow(
		"SELECT "+movieColumns+" FROM movie_cache WHERE server_id = ? AND tmdb_id = ?",
		serverID, tmdbID))
	if err != nil {
		return nil, fmt.Errorf("get movie cache %d/%d: %w", serverID, tmdbID, mapSQLiteError(err))
	}
	return e, nil
}

// GetSeries retrieves one server's cache entry for a series.
func (s *Store) GetSeries(serverID, tmdbID int64) (*SeriesEntry, error) {
	e, err := scanSeries(s.db.QueryRow(
		"SELECT "+seriesColumns+" FROM series_cache WHERE server_id = ? AND tmdb_id = ?",
		serverID, tmdbID))
	if err != nil {
		return nil, fmt.Errorf("get series cache %d/%d: %w", serverID, tmdbID, mapSQLiteError(err))
	}
	return e, nil
}

// MoviesByTMDB returns every server's entry for the given TMDB id.
// Reconciliation prefers the most-downloaded entry across servers.
func (s *Store) MoviesByTMDB(tmdbID int64) ([]*MovieEntry, error) {
	rows, err := s.db.Query(
		"SELECT "+movieColumns+" FROM movie_cache WHERE tmdb_id = ? ORDER BY server_id", tmdbID)
	if err != nil {
		return nil, fmt.Errorf("movies by tmdb %d: %w", tmdbID, mapSQLiteError(err))
	}
	defer func() { _ = rows.Close() }()

	var results []*MovieEntry
	for rows.Next() {
		e, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movie cache: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movie cache: %w", err)
	}
	return results, nil
}

// SeriesByTMDB returns every server's entry for the given TMDB id.
func (s *Store) SeriesByTMDB(tmdbID int64) ([]*SeriesEntry, error) {
	rows, err := s.db.Query(
		"SELECT "+seriesColumns+" FROM series_cache WHERE tmdb_id = ? ORDER BY server_id", tmdbID)
	if err != nil {
		return nil, fmt.Errorf("series by tmdb %d: %w", tmdbID, mapSQLiteError(err))
	}
	defer func() { _ = rows.Close() }()

	var results []*SeriesEntry
	for rows.Next() {
		e, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("scan series cache: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series cache: %w", err)
	}
	return results, nil
}

// CountForServer returns the number of cached rows owned by a server.
func (s *Store) CountForServer(table string, serverID int64) (int, error) {
	if table != "movie_cache" && table != "series_cache" {
		return 0, fmt.Errorf("unknown cache table %q", table)
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE server_id = ?", serverID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s server %d: %w", table, serverID, err)
	}
	return n, nil
}

package media

import (
	"database/sql"
	"errors"
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

// Store provides access to media records and seasons.
type Store struct {
	db *sql.DB
}

// NewStore creates a new media store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Begin starts a transaction.
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

// mapSQLiteError converts SQLite errors to custom error types.
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	// modernc.org/sqlite wraps errors; check error message for constraint violations
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY constraint failed") {
		return ErrDuplicate
	}
	if strings.Contains(errStr, "FOREIGN KEY constraint failed") ||
		strings.Contains(errStr, "CHECK constraint failed") {
		return ErrConstraint
	}
	return err
}

const recordColumns = "id, tmdb_id, media_type, tvdb_id, status, status_4k, plex_key, media_added_at, last_availability_check, created_at, updated_at"

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	r := &Record{}
	err := row.Scan(&r.ID, &r.TMDBID, &r.Type, &r.TVDBID, &r.Status, &r.Status4k,
		&r.PlexKey, &r.MediaAddedAt, &r.LastAvailabilityCheck, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func addRecord(q querier, r *Record) error {
	now := time.Now()
	result, err := q.Exec(`
		INSERT INTO media (tmdb_id, media_type, tvdb_id, status, status_4k, plex_key, media_added_at, last_availability_check, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TMDBID, r.Type, r.TVDBID, r.Status, r.Status4k, r.PlexKey, r.MediaAddedAt, r.LastAvailabilityCheck, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert media: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// Add inserts a new media record. Sets ID, CreatedAt, and UpdatedAt.
func (s *Store) Add(r *Record) error { return addRecord(s.db, r) }

// Add inserts a new media record within a transaction.
func (t *Tx) Add(r *Record) error { return addRecord(t.tx, r) }

func getRecord(q querier, id int64) (*Record, error) {
	r, err := scanRecord(q.QueryRow("SELECT "+recordColumns+" FROM media WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get media %d: %w", id, mapSQLiteError(err))
	}
	return r, nil
}

// Get retrieves a media record by ID.
// Returns ErrNotFound if the record does not exist.
func (s *Store) Get(id int64) (*Record, error) { return getRecord(s.db, id) }

// Get retrieves a media record by ID within a transaction.
func (t *Tx) Get(id int64) (*Record, error) { return getRecord(t.tx, id) }

func getByTMDB(q querier, mediaType Type, tmdbID int64) (*Record, error) {
	r, err := scanRecord(q.QueryRow(
		"SELECT "+recordColumns+" FROM media WHERE media_type = ? AND tmdb_id = ?",
		mediaType, tmdbID))
	if err != nil {
		return nil, fmt.Errorf("get media %s/%d: %w", mediaType, tmdbID, mapSQLiteError(err))
	}
	return r, nil
}

// GetByTMDB retrieves a media record by media type and TMDB ID.
// Returns ErrNotFound if no record exists yet.
func (s *Store) GetByTMDB(mediaType Type, tmdbID int64) (*Record, error) {
	return getByTMDB(s.db, mediaType, tmdbID)
}

// GetByTMDB retrieves a media record within a transaction.
func (t *Tx) GetByTMDB(mediaType Type, tmdbID int64) (*Record, error) {
	return getByTMDB(t.tx, mediaType, tmdbID)
}

func ensureRecord(q querier, mediaType Type, tmdbID int64) (*Record, error) {
	r, err := getByTMDB(q, mediaType, tmdbID)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	r = &Record{TMDBID: tmdbID, Type: mediaType}
	if err := addRecord(q, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Ensure returns the record for (mediaType, tmdbID), creating an
// Unknown-status row if none exists. Records are created lazily on
// first request, webhook, or cache hit.
func (s *Store) Ensure(mediaType Type, tmdbID int64) (*Record, error) {
	return ensureRecord(s.db, mediaType, tmdbID)
}

// Ensure returns or creates the record within a transaction.
func (t *Tx) Ensure(mediaType Type, tmdbID int64) (*Record, error) {
	return ensureRecord(t.tx, mediaType, tmdbID)
}

func applyStatus(q querier, id int64, proposed Status, is4k bool) (Status, error) {
	column := "status"
	if is4k {
		column = "status_4k"
	}
	var current Status
	if err := q.QueryRow("SELECT "+column+" FROM media WHERE id = ?", id).Scan(&current); err != nil {
		return StatusUnknown, fmt.Errorf("get media %d status: %w", id, mapSQLiteError(err))
	}
	merged := Merge(current, proposed)
	if merged == current {
		return current, nil
	}
	now := time.Now()
	var err error
	if merged >= StatusPartiallyAvailable && merged != StatusDeleted {
		_, err = q.Exec(
			"UPDATE media SET "+column+" = ?, media_added_at = COALESCE(media_added_at, ?), updated_at = ? WHERE id = ?",
			merged, now, now, id)
	} else {
		_, err = q.Exec("UPDATE media SET "+column+" = ?, updated_at = ? WHERE id = ?", merged, now, id)
	}
	if err != nil {
		return StatusUnknown, fmt.Errorf("update media %d status: %w", id, mapSQLiteError(err))
	}
	return merged, nil
}

// ApplyStatus merges a proposed status into the stored one and returns
// the resulting status. The stored value never regresses: a proposal
// lower than the current ordinal is a no-op.
func (s *Store) ApplyStatus(id int64, proposed Status, is4k bool) (Status, error) {
	return applyStatus(s.db, id, proposed, is4k)
}

// ApplyStatus merges a proposed status within a transaction.
func (t *Tx) ApplyStatus(id int64, proposed Status, is4k bool) (Status, error) {
	return applyStatus(t.tx, id, proposed, is4k)
}

func setStatus(q querier, id int64, status Status, is4k bool) error {
	column := "status"
	if is4k {
		column = "status_4k"
	}
	result, err := q.Exec("UPDATE media SET "+column+" = ?, updated_at = ? WHERE id = ?",
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("set media %d status: %w", id, mapSQLiteError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("set media %d status: %w", id, ErrNotFound)
	}
	return nil
}

// SetDeleted marks a media variant as removed from all backends. This is
// the administrative downgrade used by the availability sweep and is the
// only writer allowed to bypass Merge.
func (s *Store) SetDeleted(id int64, is4k bool) error {
	return setStatus(s.db, id, StatusDeleted, is4k)
}

// SetDeleted marks a media variant deleted within a transaction.
func (t *Tx) SetDeleted(id int64, is4k bool) error {
	return setStatus(t.tx, id, StatusDeleted, is4k)
}

// ResetStatus clears a media variant back to Unknown. Used when a title
// previously marked deleted is requested again, so fresh evidence can
// accumulate from zero.
func (s *Store) ResetStatus(id int64, is4k bool) error {
	return setStatus(s.db, id, StatusUnknown, is4k)
}

// ResetStatus clears a media variant within a transaction.
func (t *Tx) ResetStatus(id int64, is4k bool) error {
	return setStatus(t.tx, id, StatusUnknown, is4k)
}

func setPlexKey(q querier, id int64, key string) error {
	_, err := q.Exec("UPDATE media SET plex_key = ?, updated_at = ? WHERE id = ?", key, time.Now(), id)
	if err != nil {
		return fmt.Errorf("set media %d plex key: %w", id, mapSQLiteError(err))
	}
	return nil
}

// SetPlexKey records the media server presence key for a record.
func (s *Store) SetPlexKey(id int64, key string) error { return setPlexKey(s.db, id, key) }

// SetPlexKey records the presence key within a transaction.
func (t *Tx) SetPlexKey(id int64, key string) error { return setPlexKey(t.tx, id, key) }

func setTVDBID(q querier, id, tvdbID int64) error {
	_, err := q.Exec("UPDATE media SET tvdb_id = ?, updated_at = ? WHERE id = ?", tvdbID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("set media %d tvdb id: %w", id, mapSQLiteError(err))
	}
	return nil
}

// SetTVDBID records the TVDB cross-reference for a series record.
func (s *Store) SetTVDBID(id, tvdbID int64) error { return setTVDBID(s.db, id, tvdbID) }

// SetTVDBID records the TVDB cross-reference within a transaction.
func (t *Tx) SetTVDBID(id, tvdbID int64) error { return setTVDBID(t.tx, id, tvdbID) }

// TouchAvailabilityCheck records that the availability sweep examined
// this record.
func (s *Store) TouchAvailabilityCheck(id int64) error {
	_, err := s.db.Exec("UPDATE media SET last_availability_check = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return fmt.Errorf("touch media %d: %w", id, mapSQLiteError(err))
	}
	return nil
}

// ListByMinStatus returns records of the given type whose standard or 4K
// status is at least min. Used by the availability sweep.
func (s *Store) ListByMinStatus(mediaType Type, min Status) ([]*Record, error) {
	rows, err := s.db.Query(
		"SELECT "+recordColumns+" FROM media WHERE media_type = ? AND (status >= ? OR status_4k >= ?) ORDER BY id",
		mediaType, min, min)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", mapSQLiteError(err))
	}
	defer func() { _ = rows.Close() }()

	var results []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return results, nil
}

// BatchByTMDB returns the records of the given type for the given TMDB
// ids, keyed by TMDB id. Ids with no record yet are absent from the map.
func (s *Store) BatchByTMDB(mediaType Type, tmdbIDs []int64) (map[int64]*Record, error) {
	if len(tmdbIDs) == 0 {
		return map[int64]*Record{}, nil
	}
	placeholders := strings.Repeat("?,", len(tmdbIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(tmdbIDs)+1)
	args = append(args, mediaType)
	for _, id := range tmdbIDs {
		args = append(args, id)
	}

	rows, err := s.db.Query(
		"SELECT "+recordColumns+" FROM media WHERE media_type = ? AND tmdb_id IN ("+placeholders+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("batch media: %w", mapSQLiteError(err))
	}
	defer func() { _ = rows.Close() }()

	results := make(map[int64]*Record, len(tmdbIDs))
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		results[r.TMDBID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return results, nil
}

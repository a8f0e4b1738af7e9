package request

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/quota"
)

// querier abstracts *sql.DB and *sql.Tx for shared query logic.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// Store provides access to request rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a new request store.
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

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicate
	}
	return err
}

const requestColumns = "id, user_id, tmdb_id, media_type, is_4k, seasons, status, requested_at, approver_id, service_id, server_id, message, updated_at"

func encodeSeasons(seasons []int) (*string, error) {
	if seasons == nil {
		return nil, nil
	}
	data, err := json.Marshal(seasons)
	if err != nil {
		return nil, fmt.Errorf("encode seasons: %w", err)
	}
	s := string(data)
	return &s, nil
}

func scanRequest(row interface{ Scan(...any) error }) (*Request, error) {
	r := &Request{}
	var seasons *string
	err := row.Scan(&r.ID, &r.UserID, &r.TMDBID, &r.Type, &r.Is4K, &seasons, &r.Status,
		&r.RequestedAt, &r.ApproverID, &r.ServiceID, &r.ServerID, &r.Message, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if seasons != nil {
		if err := json.Unmarshal([]byte(*seasons), &r.Seasons); err != nil {
			return nil, fmt.Errorf("decode seasons: %w", err)
		}
	}
	return r, nil
}

func addRequest(q querier, r *Request) error {
	now := time.Now()
	if r.RequestedAt.IsZero() {
		r.RequestedAt = now
	}
	seasons, err := encodeSeasons(r.Seasons)
	if err != nil {
		return err
	}
	result, err := q.Exec(`
		INSERT INTO requests (user_id, tmdb_id, media_type, is_4k, seasons, status, requested_at, approver_id, service_id, server_id, message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.TMDBID, r.Type, r.Is4K, seasons, r.Status, r.RequestedAt,
		r.ApproverID, r.ServiceID, r.ServerID, r.Message, now,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	r.ID = id
	r.UpdatedAt = now
	return nil
}

// Add inserts a new request. Sets ID, RequestedAt (if zero), and
// UpdatedAt.
func (s *Store) Add(r *Request) error { return addRequest(s.db, r) }

// Add inserts a request within a transaction.
func (t *Tx) Add(r *Request) error { return addRequest(t.tx, r) }

func getRequest(q querier, id int64) (*Request, error) {
	r, err := scanRequest(q.QueryRow("SELECT "+requestColumns+" FROM requests WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get request %d: %w", id, mapSQLiteError(err))
	}
	return r, nil
}

// Get retrieves a request by ID. Returns ErrNotFound if absent.
func (s *Store) Get(id int64) (*Request, error) { return getRequest(s.db, id) }

// Get retrieves a request within a transaction.
func (t *Tx) Get(id int64) (*Request, error) { return getRequest(t.tx, id) }

func listRequests(q querier, f Filter) ([]*Request, int, error) {
	var conditions []string
	var args []any

	if f.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.TMDBID != nil {
		conditions = append(conditions, "tmdb_id = ?")
		args = append(args, *f.TMDBID)
	}
	if f.Type != nil {
		conditions = append(conditions, "media_type = ?")
		args = append(args, *f.Type)
	}
	if f.Is4K != nil {
		conditions = append(conditions, "is_4k = ?")
		args = append(args, *f.Is4K)
	}
	if f.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *f.Status)
	}
	if f.ActiveOnly {
		conditions = append(conditions, "status NOT IN ('declined', 'failed', 'removed')")
	}
	if f.Since != nil {
		// Strictly-after comparison: a request at exactly now-window
		// has aged out of the quota window.
		conditions = append(conditions, "requested_at > ?")
		args = append(args, *f.Since)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := q.QueryRow("SELECT COUNT(*) FROM requests "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	query := "SELECT " + requestColumns + " FROM requests " + whereClause + " ORDER BY requested_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan request: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate requests: %w", err)
	}

	return results, total, nil
}

// List returns requests matching the filter with pagination.
// Returns (results, totalCount, error).
func (s *Store) List(f Filter) ([]*Request, int, error) { return listRequests(s.db, f) }

// List returns matching requests within a transaction.
func (t *Tx) List(f Filter) ([]*Request, int, error) { return listRequests(t.tx, f) }

func setStatus(q querier, id int64, status Status) error {
	result, err := q.Exec("UPDATE requests SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update request %d: %w", id, mapSQLiteError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update request %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetStatus moves a request to a new lifecycle state.
func (s *Store) SetStatus(id int64, status Status) error { return setStatus(s.db, id, status) }

// SetStatus moves a request within a transaction.
func (t *Tx) SetStatus(id int64, status Status) error { return setStatus(t.tx, id, status) }

func setApprover(q querier, id, approverID int64) error {
	_, err := q.Exec("UPDATE requests SET approver_id = ?, updated_at = ? WHERE id = ?",
		approverID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("set approver on request %d: %w", id, mapSQLiteError(err))
	}
	return nil
}

// SetApprover records who approved or declined the request.
func (s *Store) SetApprover(id, approverID int64) error { return setApprover(s.db, id, approverID) }

// SetApprover records the approver within a transaction.
func (t *Tx) SetApprover(id, approverID int64) error { return setApprover(t.tx, id, approverID) }

func setDispatched(q querier, id, serverID, serviceID int64) error {
	_, err := q.Exec(
		"UPDATE requests SET status = ?, server_id = ?, service_id = ?, updated_at = ? WHERE id = ?",
		StatusProcessing, serverID, serviceID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark request %d dispatched: %w", id, mapSQLiteError(err))
	}
	return nil
}

// SetDispatched records the server and external id assigned by the
// download manager and moves the request to processing.
func (s *Store) SetDispatched(id, serverID, serviceID int64) error {
	return setDispatched(s.db, id, serverID, serviceID)
}

// SetDispatched records dispatch within a transaction.
func (t *Tx) SetDispatched(id, serverID, serviceID int64) error {
	return setDispatched(t.tx, id, serverID, serviceID)
}

func setFailed(q querier, id int64, message string) error {
	_, err := q.Exec("UPDATE requests SET status = ?, message = ?, updated_at = ? WHERE id = ?",
		StatusFailed, message, time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark request %d failed: %w", id, mapSQLiteError(err))
	}
	return nil
}

// SetFailed marks the request failed with the causing message attached.
func (s *Store) SetFailed(id int64, message string) error { return setFailed(s.db, id, message) }

// SetFailed marks the request failed within a transaction.
func (t *Tx) SetFailed(id int64, message string) error { return setFailed(t.tx, id, message) }

// CountSince counts a user's requests of (mediaType, is4k) with
// requested_at strictly after since. This is the sliding-window counter
// for the movie and tv-show quota dimensions.
func (s *Store) CountSince(userID int64, mediaType media.Type, is4k bool, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM requests
		WHERE user_id = ? AND media_type = ? AND is_4k = ? AND requested_at > ?`,
		userID, mediaType, is4k, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count requests since: %w", err)
	}
	return n, nil
}

// SumSeasonsSince sums the season weight of a user's tv requests of the
// given 4K variant inside the window. A null season list weighs 1
// ("all seasons", from requests predating season tracking).
func (s *Store) SumSeasonsSince(userID int64, is4k bool, since time.Time) (int, error) {
	rows, err := s.db.Query(`
		SELECT seasons FROM requests
		WHERE user_id = ? AND media_type = ? AND is_4k = ? AND requested_at > ?`,
		userID, media.TypeTV, is4k, since)
	if err != nil {
		return 0, fmt.Errorf("sum seasons since: %w", err)
	}
	defer func() { _ = rows.Close() }()

	total := 0
	for rows.Next() {
		var seasons *string
		if err := rows.Scan(&seasons); err != nil {
			return 0, fmt.Errorf("scan seasons: %w", err)
		}
		if seasons == nil {
			total++
			continue
		}
		var list []int
		if err := json.Unmarshal([]byte(*seasons), &list); err != nil {
			return 0, fmt.Errorf("decode seasons: %w", err)
		}
		total += len(list)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate seasons: %w", err)
	}
	return total, nil
}

// ActiveByMedia returns the active (not declined/failed/removed)
// requests for one (tmdb, type, 4k) combination.
func (s *Store) ActiveByMedia(tmdbID int64, mediaType media.Type, is4k bool) ([]*Request, error) {
	results, _, err := s.List(Filter{
		TMDBID:     &tmdbID,
		Type:       &mediaType,
		Is4K:       &is4k,
		ActiveOnly: true,
	})
	return results, err
}

// ActiveSummaries narrows ActiveByMedia to the admission engine's view
// of the same rows.
func (s *Store) ActiveSummaries(tmdbID int64, mediaType media.Type, is4k bool) ([]quota.RequestSummary, error) {
	active, err := s.ActiveByMedia(tmdbID, mediaType, is4k)
	if err != nil {
		return nil, err
	}
	summaries := make([]quota.RequestSummary, len(active))
	for i, r := range active {
		summaries[i] = quota.RequestSummary{
			RequestID: r.ID,
			UserID:    r.UserID,
			Seasons:   r.Seasons,
		}
	}
	return summaries, nil
}

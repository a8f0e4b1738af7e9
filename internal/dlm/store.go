package dlm

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streamarr/streamarr/internal/media"
)

// ServerStore persists download-manager server configuration.
type ServerStore struct {
	db *sql.DB
}

// NewServerStore creates a new server store.
func NewServerStore(db *sql.DB) *ServerStore {
	return &ServerStore{db: db}
}

const serverColumns = "id, name, server_type, url, api_key, quality_profile, root_folder, active, is_default, is_4k, tags, search_on_add, last_library_sync, created_at, updated_at"

func encodeTags(tags []int) (*string, error) {
	if tags == nil {
		return nil, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	s := string(data)
	return &s, nil
}

func scanServer(row interface{ Scan(...any) error }) (*Server, error) {
	srv := &Server{}
	var tags *string
	err := row.Scan(&srv.ID, &srv.Name, &srv.Type, &srv.URL, &srv.APIKey, &srv.QualityProfile,
		&srv.RootFolder, &srv.Active, &srv.IsDefault, &srv.Is4K, &tags, &srv.SearchOnAdd,
		&srv.LastLibrarySync, &srv.CreatedAt, &srv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tags != nil {
		if err := json.Unmarshal([]byte(*tags), &srv.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return srv, nil
}

// Add inserts a new server row. Sets ID, CreatedAt, and UpdatedAt.
func (s *ServerStore) Add(srv *Server) error {
	now := time.Now()
	tags, err := encodeTags(srv.Tags)
	if err != nil {
		return err
	}
	result, err := s.db.Exec(`
		INSERT INTO sync_servers (name, server_type, url, api_key, quality_profile, root_folder, active, is_default, is_4k, tags, search_on_add, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		srv.Name, srv.Type, srv.URL, srv.APIKey, srv.QualityProfile, srv.RootFolder,
		srv.Active, srv.IsDefault, srv.Is4K, tags, srv.SearchOnAdd, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert server: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	srv.ID = id
	srv.CreatedAt = now
	srv.UpdatedAt = now
	return nil
}

// Get retrieves a server by ID. Returns ErrNotFound if absent.
func (s *ServerStore) Get(id int64) (*Server, error) {
	srv, err := scanServer(s.db.QueryRow("SELECT "+serverColumns+" FROM sync_servers WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get server %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get server %d: %w", id, err)
	}
	return srv, nil
}

// ListActive returns active servers of the given type.
func (s *ServerStore) ListActive(serverType media.Type) ([]*Server, error) {
	return s.list("server_type = ? AND active = 1", serverType)
}

// ListAll returns every configured server.
func (s *ServerStore) ListAll() ([]*Server, error) {
	return s.list("")
}

func (s *ServerStore) list(where string, args ...any) ([]*Server, error) {
	query := "SELECT " + serverColumns + " FROM sync_servers"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY id"
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		results = append(results, srv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate servers: %w", err)
	}
	return results, nil
}

// Default returns the default server for (type, 4K variant), or
// ErrNoServer if none is configured.
func (s *ServerStore) Default(serverType media.Type, is4k bool) (*Server, error) {
	srv, err := scanServer(s.db.QueryRow(
		"SELECT "+serverColumns+" FROM sync_servers WHERE server_type = ? AND is_4k = ? AND active = 1 AND is_default = 1 LIMIT 1",
		serverType, is4k))
	if err == sql.ErrNoRows {
		return nil, ErrNoServer
	}
	if err != nil {
		return nil, fmt.Errorf("get default server: %w", err)
	}
	return srv, nil
}

// Update rewrites a server's mutable fields.
func (s *ServerStore) Update(srv *Server) error {
	now := time.Now()
	tags, err := encodeTags(srv.Tags)
	if err != nil {
		return err
	}
	result, err := s.db.Exec(`
		UPDATE sync_servers
		SET name = ?, server_type = ?, url = ?, api_key = ?, quality_profile = ?, root_folder = ?,
			active = ?, is_default = ?, is_4k = ?, tags = ?, search_on_add = ?, updated_at = ?
		WHERE id = ?`,
		srv.Name, srv.Type, srv.URL, srv.APIKey, srv.QualityProfile, srv.RootFolder,
		srv.Active, srv.IsDefault, srv.Is4K, tags, srv.SearchOnAdd, now, srv.ID,
	)
	if err != nil {
		return fmt.Errorf("update server %d: %w", srv.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update server %d: %w", srv.ID, ErrNotFound)
	}
	srv.UpdatedAt = now
	return nil
}

// Delete removes a server row.
func (s *ServerStore) Delete(id int64) error {
	if _, err := s.db.Exec("DELETE FROM sync_servers WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete server %d: %w", id, err)
	}
	return nil
}

// SetDefault makes a server the default for its (type, 4K) slot,
// clearing the flag on its siblings first. Two statements mutate shared
// state here, so callers must route this through the write serializer.
func (s *ServerStore) SetDefault(id int64) error {
	srv, err := s.Get(id)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		"UPDATE sync_servers SET is_default = 0, updated_at = ? WHERE server_type = ? AND is_4k = ? AND id != ?",
		time.Now(), srv.Type, srv.Is4K, id); err != nil {
		return fmt.Errorf("clear defaults: %w", err)
	}
	if _, err := tx.Exec(
		"UPDATE sync_servers SET is_default = 1, updated_at = ? WHERE id = ?",
		time.Now(), id); err != nil {
		return fmt.Errorf("set default: %w", err)
	}
	return tx.Commit()
}

// SetLastLibrarySync records when a server's library was last pulled.
func (s *ServerStore) SetLastLibrarySync(id int64, at time.Time) error {
	if _, err := s.db.Exec("UPDATE sync_servers SET last_library_sync = ? WHERE id = ?", at, id); err != nil {
		return fmt.Errorf("set last library sync %d: %w", id, err)
	}
	return nil
}

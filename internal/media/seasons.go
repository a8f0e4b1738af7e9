package media

import (
	"errors"
	"fmt"
	"time"
)

const seasonColumns = "id, media_id, season_number, status, status_4k, created_at, updated_at"

func scanSeason(row interface{ Scan(...any) error }) (*Season, error) {
	se := &Season{}
	err := row.Scan(&se.ID, &se.MediaID, &se.SeasonNumber, &se.Status, &se.Status4k, &se.CreatedAt, &se.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return se, nil
}

func addSeason(q querier, se *Season) error {
	now := time.Now()
	result, err := q.Exec(`
		INSERT INTO seasons (media_id, season_number, status, status_4k, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		se.MediaID, se.SeasonNumber, se.Status, se.Status4k, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert season: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	se.ID = id
	se.CreatedAt = now
	se.UpdatedAt = now
	return nil
}

// AddSeason inserts a new season tracking row.
func (s *Store) AddSeason(se *Season) error { return addSeason(s.db, se) }

// AddSeason inserts a season row within a transaction.
func (t *Tx) AddSeason(se *Season) error { return addSeason(t.tx, se) }

func getSeason(q querier, mediaID int64, seasonNumber int) (*Season, error) {
	se, err := scanSeason(q.QueryRow(
		"SELECT "+seasonColumns+" FROM seasons WHERE media_id = ? AND season_number = ?",
		mediaID, seasonNumber))
	if err != nil {
		return nil, fmt.Errorf("get season %d/%d: %w", mediaID, seasonNumber, mapSQLiteError(err))
	}
	return se, nil
}

// GetSeason retrieves a season row by media ID and season number.
// Returns ErrNotFound if the season is not tracked yet.
func (s *Store) GetSeason(mediaID int64, seasonNumber int) (*Season, error) {
	return getSeason(s.db, mediaID, seasonNumber)
}

// GetSeason retrieves a season row within a transaction.
func (t *Tx) GetSeason(mediaID int64, seasonNumber int) (*Season, error) {
	return getSeason(t.tx, mediaID, seasonNumber)
}

func listSeasons(q querier, mediaID int64) ([]*Season, error) {
	rows, err := q.Query(
		"SELECT "+seasonColumns+" FROM seasons WHERE media_id = ? ORDER BY season_number",
		mediaID)
	if err != nil {
		return nil, fmt.Errorf("list seasons: %w", mapSQLiteError(err))
	}
	defer func() { _ = rows.Close() }()

	var results []*Season
	for rows.Next() {
		se, err := scanSeason(rows)
		if err != nil {
			return nil, fmt.Errorf("scan season: %w", err)
		}
		results = append(results, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seasons: %w", err)
	}
	return results, nil
}

// ListSeasons returns all tracked seasons for a media record, ordered by
// season number.
func (s *Store) ListSeasons(mediaID int64) ([]*Season, error) { return listSeasons(s.db, mediaID) }

// ListSeasons returns tracked seasons within a transaction.
func (t *Tx) ListSeasons(mediaID int64) ([]*Season, error) { return listSeasons(t.tx, mediaID) }

func applySeasonStatus(q querier, mediaID int64, seasonNumber int, proposed Status, is4k bool) (Status, error) {
	se, err := getSeason(q, mediaID, seasonNumber)
	if errors.Is(err, ErrNotFound) {
		// First observation of this season creates the row.
		se = &Season{MediaID: mediaID, SeasonNumber: seasonNumber}
		if is4k {
			se.Status4k = proposed
		} else {
			se.Status = proposed
		}
		if err := addSeason(q, se); err != nil {
			return StatusUnknown, err
		}
		return proposed, nil
	}
	if err != nil {
		return StatusUnknown, err
	}

	column := "status"
	current := se.Status
	if is4k {
		column = "status_4k"
		current = se.Status4k
	}
	merged := Merge(current, proposed)
	if merged == current {
		return current, nil
	}
	if _, err := q.Exec("UPDATE seasons SET "+column+" = ?, updated_at = ? WHERE id = ?",
		merged, time.Now(), se.ID); err != nil {
		return StatusUnknown, fmt.Errorf("update season %d: %w", se.ID, mapSQLiteError(err))
	}
	return merged, nil
}

// ApplySeasonStatus merges a proposed status into a season, creating the
// tracking row on first observation. Same monotonic rule as ApplyStatus.
func (s *Store) ApplySeasonStatus(mediaID int64, seasonNumber int, proposed Status, is4k bool) (Status, error) {
	return applySeasonStatus(s.db, mediaID, seasonNumber, proposed, is4k)
}

// ApplySeasonStatus merges a season status within a transaction.
func (t *Tx) ApplySeasonStatus(mediaID int64, seasonNumber int, proposed Status, is4k bool) (Status, error) {
	return applySeasonStatus(t.tx, mediaID, seasonNumber, proposed, is4k)
}

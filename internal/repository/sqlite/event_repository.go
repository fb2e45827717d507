package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"eventcam/internal/dto"
	"eventcam/internal/model"
)

// timestampLayout is the stored form of event timestamps, in local time.
const timestampLayout = "2006-01-02 15:04:05"

const eventColumns = `id, uuid, kind, label, filename, filepath, filesize, frames, timestamp`

// EventRepository implements repository.EventRepository for SQLite.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

const upsertEvent = `
	INSERT INTO events (uuid, kind, label, filename, filepath, filesize, frames, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(filename) DO UPDATE SET
		uuid = excluded.uuid,
		kind = excluded.kind,
		label = excluded.label,
		filepath = excluded.filepath,
		filesize = excluded.filesize,
		frames = excluded.frames,
		timestamp = excluded.timestamp
	RETURNING id
`

func eventArgs(e *model.Event) []interface{} {
	return []interface{}{
		e.UUID, string(e.Kind), e.Label, e.Filename, e.FilePath,
		e.FileSize, e.Frames, e.Timestamp.In(time.Local).Format(timestampLayout),
	}
}

// Insert adds an event or replaces the row with the same filename.
func (r *EventRepository) Insert(e *model.Event) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	var id int64
	if err := r.db.Conn().QueryRow(upsertEvent, eventArgs(e)...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

// InsertBatch inserts events in a single transaction and returns how many
// rows were written.
func (r *EventRepository) InsertBatch(events []model.Event) (int, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertEvent)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare event statement: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		var id int64
		if err := stmt.QueryRow(eventArgs(&events[i])...).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to insert event %s: %w", events[i].Filename, err)
		}
		events[i].ID = id
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}
	return len(events), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*model.Event, error) {
	var (
		e         model.Event
		kind      string
		timestamp string
	)
	if err := row.Scan(&e.ID, &e.UUID, &kind, &e.Label, &e.Filename, &e.FilePath, &e.FileSize, &e.Frames, &timestamp); err != nil {
		return nil, err
	}
	e.Kind = model.EventKind(kind)

	t, err := time.ParseInLocation(timestampLayout, timestamp, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", timestamp, err)
	}
	e.Timestamp = t
	return &e, nil
}

// GetByFilename retrieves an event by its filename. It returns nil when
// no event matches.
func (r *EventRepository) GetByFilename(filename string) (*model.Event, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+eventColumns+` FROM events WHERE filename = ?`, filename)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// whereClause builds the filter conditions shared by GetAll and GetTotalCount.
func whereClause(filter *dto.EventFilters) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if filter == nil {
		return "", nil
	}

	if filter.Label != "" {
		conds = append(conds, "label = ?")
		args = append(args, filter.Label)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filter.Kind)
	}
	if !filter.DateAfter.IsZero() {
		conds = append(conds, "DATE(timestamp) >= DATE(?)")
		args = append(args, filter.DateAfter.Format("2006-01-02"))
	}
	if !filter.DateBefore.IsZero() {
		conds = append(conds, "DATE(timestamp) <= DATE(?)")
		args = append(args, filter.DateBefore.Format("2006-01-02"))
	}
	if !filter.TimeAfter.IsZero() {
		conds = append(conds, "TIME(timestamp) >= TIME(?)")
		args = append(args, filter.TimeAfter.Format("15:04:05"))
	}
	if !filter.TimeBefore.IsZero() {
		conds = append(conds, "TIME(timestamp) <= TIME(?)")
		args = append(args, filter.TimeBefore.Format("15:04:05"))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// GetAll retrieves events matching the filter, newest first.
func (r *EventRepository) GetAll(filter *dto.EventFilters) ([]model.Event, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	query := `SELECT ` + eventColumns + ` FROM events` + where + ` ORDER BY timestamp DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetTotalCount returns the number of events matching the filter.
func (r *EventRepository) GetTotalCount(filter *dto.EventFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM events`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// GetLabels returns the distinct trigger labels.
func (r *EventRepository) GetLabels() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT DISTINCT label FROM events ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()

	labels := []string{}
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// GetStats returns statistics about indexed events.
func (r *EventRepository) GetStats() (*model.EventStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.EventStats{
		PerKind:  make(map[string]int),
		PerLabel: make(map[string]int),
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*), COALESCE(SUM(filesize), 0) FROM events`).
		Scan(&stats.TotalEvents, &stats.TotalSizeBytes); err != nil {
		return nil, fmt.Errorf("failed to compute totals: %w", err)
	}

	if err := r.groupCount(`SELECT kind, COUNT(*) FROM events GROUP BY kind`, stats.PerKind); err != nil {
		return nil, err
	}
	if err := r.groupCount(`SELECT label, COUNT(*) FROM events GROUP BY label`, stats.PerLabel); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *EventRepository) groupCount(query string, into map[string]int) error {
	rows, err := r.db.Conn().Query(query)
	if err != nil {
		return fmt.Errorf("failed to group events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan group: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

// GetDirectorySize returns the total size of indexed files in bytes.
func (r *EventRepository) GetDirectorySize() (int64, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var size int64
	if err := r.db.Conn().QueryRow(`SELECT COALESCE(SUM(filesize), 0) FROM events`).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to sum event sizes: %w", err)
	}
	return size, nil
}

// DeleteByFilename removes an event by its filename.
func (r *EventRepository) DeleteByFilename(filename string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM events WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// DeleteAll removes all events.
func (r *EventRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM events`); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

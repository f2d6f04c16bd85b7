package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const sessionColumns = `id, room_id, patient_ref, patient_label, session_type,
	staff_slot_1, staff_slot_2, staff_slot_3,
	status, scheduled_start, scheduled_end, arrived_at, started_at, finalized_at,
	active_slot, slot_elapsed_1, slot_elapsed_2, slot_elapsed_3,
	created_at, updated_at`

// CreateSession inserts a new therapy session.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.TherapySession) error {
	if session.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if len(session.StaffSlots) < 1 || len(session.StaffSlots) > 3 {
		return persistence.ErrConstraintViolation
	}
	if !session.ScheduledEnd.After(session.ScheduledStart) {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	slot2, slot3 := optionalSlot(session.StaffSlots, 2), optionalSlot(session.StaffSlots, 3)
	e1, e2, e3 := elapsedSeconds(session.SlotElapsed)

	query := `
		INSERT INTO therapy_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.helper.Exec(ctx, query,
		session.ID,
		session.RoomID,
		session.PatientRef,
		session.PatientLabel,
		session.SessionType,
		session.StaffSlots[0],
		slot2,
		slot3,
		session.Status,
		session.ScheduledStart.UTC().Format(time.RFC3339),
		session.ScheduledEnd.UTC().Format(time.RFC3339),
		nullableTime(session.ArrivedAt),
		nullableTime(session.StartedAt),
		nullableTime(session.FinalizedAt),
		session.ActiveSlot,
		e1, e2, e3,
		session.CreatedAt.Format(time.RFC3339),
		session.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// GetSession retrieves a therapy session by ID.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (persistence.TherapySession, error) {
	if id == "" {
		return persistence.TherapySession{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM therapy_sessions WHERE id = ?", id)
	session, err := scanSession(row)
	if err != nil {
		return persistence.TherapySession{}, r.mapper.MapError(err)
	}
	return session, nil
}

// ListSessions lists therapy sessions matching the filter, ordered by
// scheduled start.
func (r *SessionRepository) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.TherapySession, error) {
	query := "SELECT " + sessionColumns + " FROM therapy_sessions"

	var conditions []string
	var args []any

	if filter.Date != nil {
		dayStart := filter.Date.Truncate(24 * time.Hour)
		if loc := filter.Date.Location(); loc != time.UTC {
			y, m, d := filter.Date.Date()
			dayStart = time.Date(y, m, d, 0, 0, 0, 0, loc)
		}
		conditions = append(conditions, "scheduled_start >= ? AND scheduled_start < ?")
		args = append(args,
			dayStart.UTC().Format(time.RFC3339),
			dayStart.Add(24*time.Hour).UTC().Format(time.RFC3339))
	}
	if filter.RoomID != nil {
		conditions = append(conditions, "room_id = ?")
		args = append(args, *filter.RoomID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY scheduled_start ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var sessions []persistence.TherapySession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return sessions, nil
}

// UpdateSessionIf applies the mutation only while the stored row still
// matches the expectation. A matched update returns the refreshed row; a row
// that exists but no longer matches yields ErrConflict, a missing row yields
// ErrNotFound.
func (r *SessionRepository) UpdateSessionIf(ctx context.Context, id string, expect persistence.SessionExpectation, change persistence.SessionMutation) (persistence.TherapySession, error) {
	if id == "" {
		return persistence.TherapySession{}, persistence.ErrNotFound
	}

	var sets []string
	var args []any

	if change.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *change.Status)
	}
	if change.ActiveSlot != nil {
		sets = append(sets, "active_slot = ?")
		args = append(args, *change.ActiveSlot)
	}
	if change.SlotElapsed != nil {
		e1, e2, e3 := elapsedSeconds(change.SlotElapsed)
		sets = append(sets, "slot_elapsed_1 = ?", "slot_elapsed_2 = ?", "slot_elapsed_3 = ?")
		args = append(args, e1, e2, e3)
	}
	if change.ArrivedAt != nil {
		sets = append(sets, "arrived_at = ?")
		args = append(args, change.ArrivedAt.UTC().Format(time.RFC3339))
	}
	if change.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, change.StartedAt.UTC().Format(time.RFC3339))
	}
	if change.FinalizedAt != nil {
		sets = append(sets, "finalized_at = ?")
		args = append(args, change.FinalizedAt.UTC().Format(time.RFC3339))
	}
	if len(sets) == 0 {
		return r.GetSession(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339))

	// The precondition rides in the WHERE clause so the check and the write
	// are one statement; a row changed by another writer matches nothing.
	query := fmt.Sprintf(
		"UPDATE therapy_sessions SET %s WHERE id = ? AND status = ? AND active_slot = ?",
		strings.Join(sets, ", "))
	args = append(args, id, expect.Status, expect.ActiveSlot)

	var updated persistence.TherapySession
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(tx, query, args...)
		if err != nil {
			return r.mapper.MapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			var exists int
			err := r.helper.QueryRowTx(tx,
				"SELECT 1 FROM therapy_sessions WHERE id = ?", id).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			if err != nil {
				return r.mapper.MapError(err)
			}
			return persistence.ErrConflict
		}

		row := r.helper.QueryRowTx(tx,
			"SELECT "+sessionColumns+" FROM therapy_sessions WHERE id = ?", id)
		updated, err = scanSession(row)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
	if err != nil {
		return persistence.TherapySession{}, err
	}
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (persistence.TherapySession, error) {
	var session persistence.TherapySession
	var slot1 string
	var slot2, slot3 sql.NullString
	var scheduledStart, scheduledEnd, createdAt, updatedAt string
	var arrivedAt, startedAt, finalizedAt sql.NullString
	var e1, e2, e3 int64

	err := row.Scan(
		&session.ID,
		&session.RoomID,
		&session.PatientRef,
		&session.PatientLabel,
		&session.SessionType,
		&slot1,
		&slot2,
		&slot3,
		&session.Status,
		&scheduledStart,
		&scheduledEnd,
		&arrivedAt,
		&startedAt,
		&finalizedAt,
		&session.ActiveSlot,
		&e1, &e2, &e3,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.TherapySession{}, err
	}

	session.StaffSlots = []string{slot1}
	if slot2.Valid {
		session.StaffSlots = append(session.StaffSlots, slot2.String)
	}
	if slot3.Valid {
		session.StaffSlots = append(session.StaffSlots, slot3.String)
	}

	elapsed := []time.Duration{
		time.Duration(e1) * time.Second,
		time.Duration(e2) * time.Second,
		time.Duration(e3) * time.Second,
	}
	session.SlotElapsed = elapsed[:len(session.StaffSlots)]

	if session.ScheduledStart, err = time.Parse(time.RFC3339, scheduledStart); err != nil {
		return persistence.TherapySession{}, fmt.Errorf("failed to parse scheduled_start: %w", err)
	}
	if session.ScheduledEnd, err = time.Parse(time.RFC3339, scheduledEnd); err != nil {
		return persistence.TherapySession{}, fmt.Errorf("failed to parse scheduled_end: %w", err)
	}
	if session.ArrivedAt, err = parseNullableTime(arrivedAt, "arrived_at"); err != nil {
		return persistence.TherapySession{}, err
	}
	if session.StartedAt, err = parseNullableTime(startedAt, "started_at"); err != nil {
		return persistence.TherapySession{}, err
	}
	if session.FinalizedAt, err = parseNullableTime(finalizedAt, "finalized_at"); err != nil {
		return persistence.TherapySession{}, err
	}
	if session.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return persistence.TherapySession{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if session.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return persistence.TherapySession{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return session, nil
}

func optionalSlot(slots []string, position int) sql.NullString {
	if len(slots) < position {
		return sql.NullString{}
	}
	return sql.NullString{String: slots[position-1], Valid: true}
}

func elapsedSeconds(elapsed []time.Duration) (int64, int64, int64) {
	seconds := func(i int) int64 {
		if i >= len(elapsed) {
			return 0
		}
		return int64(elapsed[i] / time.Second)
	}
	return seconds(0), seconds(1), seconds(2)
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullableTime(value sql.NullString, column string) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return &t, nil
}

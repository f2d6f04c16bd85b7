package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
)

// AllocationRepository implements persistence.AllocationRepository using
// SQLite.
type AllocationRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAllocationRepository creates a new SQLite allocation repository.
func NewAllocationRepository(pool *ConnectionPool) *AllocationRepository {
	return &AllocationRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const allocationColumns = `id, staff_ref, staff_name, room_id, weekday, period,
	active, created_at, updated_at`

// CreateAllocation inserts a standing staff-to-room assignment.
func (r *AllocationRepository) CreateAllocation(ctx context.Context, allocation persistence.StaffAllocation) error {
	if allocation.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	allocation.CreatedAt = now
	allocation.UpdatedAt = now

	query := `
		INSERT INTO staff_allocations (` + allocationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.helper.Exec(ctx, query,
		allocation.ID,
		allocation.StaffRef,
		allocation.StaffName,
		allocation.RoomID,
		int(allocation.Weekday),
		allocation.Period,
		boolInt(allocation.Active),
		allocation.CreatedAt.Format(time.RFC3339),
		allocation.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// ListActiveAllocations lists every active assignment.
func (r *AllocationRepository) ListActiveAllocations(ctx context.Context) ([]persistence.StaffAllocation, error) {
	return r.list(ctx,
		"SELECT "+allocationColumns+" FROM staff_allocations WHERE active = 1 ORDER BY room_id, weekday, period, staff_name")
}

// ListAllocationsForRoom lists active assignments for one room.
func (r *AllocationRepository) ListAllocationsForRoom(ctx context.Context, roomID string) ([]persistence.StaffAllocation, error) {
	return r.list(ctx,
		"SELECT "+allocationColumns+" FROM staff_allocations WHERE active = 1 AND room_id = ? ORDER BY weekday, period, staff_name",
		roomID)
}

func (r *AllocationRepository) list(ctx context.Context, query string, args ...any) ([]persistence.StaffAllocation, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var allocations []persistence.StaffAllocation
	for rows.Next() {
		var a persistence.StaffAllocation
		var weekday, active int
		var createdAt, updatedAt string

		err := rows.Scan(
			&a.ID,
			&a.StaffRef,
			&a.StaffName,
			&a.RoomID,
			&weekday,
			&a.Period,
			&active,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}

		a.Weekday = time.Weekday(weekday)
		a.Active = active != 0
		if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if a.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}

		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return allocations, nil
}

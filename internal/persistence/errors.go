package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConflict is returned when a conditional update matched no row
	// because another writer changed the record first.
	ErrConflict = errors.New("persistence: concurrent update conflict")
	// ErrConstraintViolation is returned for check constraint failures.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrUnavailable is returned when the store cannot be reached.
	ErrUnavailable = errors.New("persistence: store unavailable")
)

package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrInvalidDeadline   = errors.New("invalid revision deadline")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnreadablePayload = errors.New("unreadable payload")
)

// IllegalStateError reports an action attempted on an entity in the wrong state.
type IllegalStateError struct {
	Entity    string
	ID        string
	Current   string
	Requested string
}

func (e *IllegalStateError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s is %s; cannot move to %s", e.Entity, e.ID, e.Current, e.Requested)
}

func (e *IllegalStateError) Unwrap() error {
	return ErrIllegalTransition
}

// ConflictError reports a unique constraint violation on a write.
type ConflictError struct {
	Entity string
	Key    string
	Err    error
}

func (e *ConflictError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Key)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func (e *ConflictError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// isDuplicateKey recognises unique violations from every supported dialect.
// mysql and postgres are translated by gorm; modernc sqlite errors are not.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate entry") ||
		strings.Contains(message, "duplicate key value")
}

package store

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownDriver is returned for a database driver other than sqlite or postgres.
	ErrUnknownDriver = errors.New("unknown database driver")
	// ErrTaskConflict is returned when a task left the expected state before an update.
	ErrTaskConflict = errors.New("migration task state changed concurrently")
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

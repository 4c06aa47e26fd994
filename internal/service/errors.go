package service

import "errors"

var (
	// ErrLocalChangesConflict is returned when accepting an update would overwrite local edits.
	ErrLocalChangesConflict = errors.New("downstream has local changes, confirm to overwrite them")
	// ErrLinkNotFound is returned when a downstream usage has no link in the course.
	ErrLinkNotFound = errors.New("link not found")
	// ErrCacheInvalidation is returned when the remote mutation succeeded but the cached views could not be dropped.
	ErrCacheInvalidation = errors.New("failed to invalidate cached course views")
)

package migration

import (
	"errors"
	"fmt"

	"github.com/emrgen/linksync/internal/repository"
)

var (
	// ErrTaskActive is returned when a course already has a migration being submitted or polled.
	ErrTaskActive = fmt.Errorf("%w: a migration task is already active", repository.ErrSubmissionConflict)
	// ErrClosed is returned once the orchestrator has been closed.
	ErrClosed = errors.New("orchestrator closed")
)

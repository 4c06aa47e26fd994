package syncstate

import (
	"github.com/emrgen/linksync/internal/model"
)

type Status int

const (
	StatusUpToDate Status = iota
	StatusReadyToSync
	StatusLocallyModified
	StatusBroken
)

func (s Status) String() string {
	switch s {
	case StatusUpToDate:
		return "up-to-date"
	case StatusReadyToSync:
		return "ready-to-sync"
	case StatusLocallyModified:
		return "locally-modified"
	case StatusBroken:
		return "broken"
	}
	return "unknown"
}

// AnnotatedLink is a link together with its derived sync state.
type AnnotatedLink struct {
	model.PublishableEntityLink
	Status    Status
	OutOfSync bool
	// HintMismatch is set when the server ready_to_sync flag disagreed with OutOfSync.
	HintMismatch bool
}

// IsOutOfSync reports whether the upstream has published a version newer than
// both the synced and the declined version of the link.
func IsOutOfSync(link *model.PublishableEntityLink) bool {
	if link == nil {
		return false
	}
	upstream := model.Deref(link.UpstreamVersion)
	return upstream > max(model.Deref(link.VersionSynced), model.Deref(link.VersionDeclined))
}

// HasLocalChanges reports whether the downstream copy diverges from its upstream template.
func HasLocalChanges(link *model.PublishableEntityLink) bool {
	return link != nil && link.DownstreamIsModified
}

// RequiresConfirmation reports whether accepting the upstream version would
// overwrite local edits.
func RequiresConfirmation(link *model.PublishableEntityLink) bool {
	return HasLocalChanges(link) && IsOutOfSync(link)
}

// Classify derives the status of a single link. Local changes take precedence
// over staleness; a link whose upstream is gone is broken.
func Classify(link *model.PublishableEntityLink) Status {
	switch {
	case link == nil || link.UpstreamVersion == nil:
		return StatusBroken
	case HasLocalChanges(link):
		return StatusLocallyModified
	case IsOutOfSync(link):
		return StatusReadyToSync
	}
	return StatusUpToDate
}

// Annotate classifies every link. ReadyToSync on the returned links is
// overwritten with the recomputed value.
func Annotate(links []model.PublishableEntityLink) []AnnotatedLink {
	annotated := make([]AnnotatedLink, 0, len(links))
	for i := range links {
		link := links[i]
		outOfSync := IsOutOfSync(&link)
		mismatch := link.ReadyToSync != outOfSync
		link.ReadyToSync = outOfSync
		annotated = append(annotated, AnnotatedLink{
			PublishableEntityLink: link,
			Status:                Classify(&link),
			OutOfSync:             outOfSync,
			HintMismatch:          mismatch,
		})
	}
	return annotated
}

// Mismatches counts links where the server hint disagreed with the recomputation.
func Mismatches(links []AnnotatedLink) int {
	n := 0
	for _, link := range links {
		if link.HintMismatch {
			n++
		}
	}
	return n
}

package model

import (
	"errors"
	"time"
)

var (
	// ErrBrokenLink is returned when the upstream entity of a link no longer exists.
	ErrBrokenLink = errors.New("upstream entity no longer exists")
	// ErrVersionAhead is returned when a link is synced or declined past the upstream version.
	ErrVersionAhead = errors.New("link version is ahead of the upstream version")
	// ErrDeclineRegressed is returned when a decline would move versionDeclined backwards.
	ErrDeclineRegressed = errors.New("declined version cannot move backwards")
)

type UpstreamType string

const (
	UpstreamTypeComponent UpstreamType = "component"
	UpstreamTypeContainer UpstreamType = "container"
)

// PublishableEntityLink represents one downstream usage of one upstream entity.
// The version counters are assigned by the upstream store and are only ever
// changed by the server; clients read them and never fabricate them.
type PublishableEntityLink struct {
	ID                   int64        `json:"id" gorm:"primaryKey;autoIncrement"`
	UpstreamKey          string       `json:"upstream_key" gorm:"not null;index:idx_links_upstream_key"`
	UpstreamType         UpstreamType `json:"upstream_type" gorm:"not null;default:component"`
	UpstreamContextKey   string       `json:"upstream_context_key" gorm:"not null;index:idx_links_upstream_context_key"`
	UpstreamContextTitle string       `json:"upstream_context_title"`
	UpstreamVersion      *int64       `json:"upstream_version"` // nil once the upstream entity is deleted
	DownstreamUsageKey   string       `json:"downstream_usage_key" gorm:"not null;uniqueIndex:idx_links_downstream_usage_key"`
	DownstreamContextKey string       `json:"downstream_context_key" gorm:"not null;index:idx_links_downstream_context_key"`
	VersionSynced        *int64       `json:"version_synced"`
	VersionDeclined      *int64       `json:"version_declined"`
	DownstreamIsModified bool         `json:"downstream_is_modified" gorm:"not null;default:false"`
	ReadyToSync          bool         `json:"ready_to_sync" gorm:"-"`
	UpstreamPublishedAt  *time.Time   `json:"-"`
	Created              time.Time    `json:"created" gorm:"autoCreateTime"`
	Updated              time.Time    `json:"updated" gorm:"autoUpdateTime"`
}

func (l *PublishableEntityLink) TableName() string {
	return "publishable_entity_links"
}

// Validate checks the version invariants of the link.
func (l *PublishableEntityLink) Validate() error {
	if l.UpstreamVersion == nil {
		return nil
	}
	upstream := *l.UpstreamVersion
	if Deref(l.VersionSynced) > upstream || Deref(l.VersionDeclined) > upstream {
		return ErrVersionAhead
	}
	return nil
}

// AcceptUpstream brings the downstream copy up to date with the current upstream version.
func (l *PublishableEntityLink) AcceptUpstream() error {
	if l.UpstreamVersion == nil {
		return ErrBrokenLink
	}
	l.VersionSynced = Int64(*l.UpstreamVersion)
	l.DownstreamIsModified = false
	return nil
}

// DeclineUpstream records that the author chose to skip the current upstream version.
func (l *PublishableEntityLink) DeclineUpstream() error {
	if l.UpstreamVersion == nil {
		return ErrBrokenLink
	}
	if Deref(l.VersionDeclined) > *l.UpstreamVersion {
		return ErrDeclineRegressed
	}
	l.VersionDeclined = Int64(*l.UpstreamVersion)
	return nil
}

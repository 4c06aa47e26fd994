package model

import "time"

// LegacyBlock is a legacy library reference in a course that can be migrated into a link.
type LegacyBlock struct {
	ID                   int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	CourseKey            string    `json:"-" gorm:"not null;index:idx_legacy_blocks_course"`
	UsageKey             string    `json:"usage_key" gorm:"not null;uniqueIndex"`
	UpstreamKey          string    `json:"-"`
	UpstreamType         string    `json:"-" gorm:"default:component"`
	UpstreamContextKey   string    `json:"-"`
	UpstreamContextTitle string    `json:"-"`
	UpstreamVersion      int64     `json:"-"`
	Migrated             bool      `json:"-" gorm:"not null;default:false"`
	CreatedAt            time.Time `json:"-"`
}

func (LegacyBlock) TableName() string {
	return "legacy_blocks"
}

// IntoLink converts the legacy reference into a link that is synced with its upstream.
func (b *LegacyBlock) IntoLink() *PublishableEntityLink {
	upstreamType := UpstreamType(b.UpstreamType)
	if upstreamType == "" {
		upstreamType = UpstreamTypeComponent
	}
	return &PublishableEntityLink{
		UpstreamKey:          b.UpstreamKey,
		UpstreamType:         upstreamType,
		UpstreamContextKey:   b.UpstreamContextKey,
		UpstreamContextTitle: b.UpstreamContextTitle,
		UpstreamVersion:      Int64(b.UpstreamVersion),
		DownstreamUsageKey:   b.UsageKey,
		DownstreamContextKey: b.CourseKey,
		VersionSynced:        Int64(b.UpstreamVersion),
	}
}

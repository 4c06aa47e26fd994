package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishableEntityLink_AcceptUpstream(t *testing.T) {
	link := &PublishableEntityLink{
		UpstreamVersion:      Int64(4),
		VersionSynced:        Int64(2),
		DownstreamIsModified: true,
	}

	assert.NoError(t, link.AcceptUpstream())
	assert.Equal(t, int64(4), Deref(link.VersionSynced))
	assert.False(t, link.DownstreamIsModified)
	assert.NoError(t, link.Validate())

	broken := &PublishableEntityLink{VersionSynced: Int64(1)}
	assert.ErrorIs(t, broken.AcceptUpstream(), ErrBrokenLink)
}

func TestPublishableEntityLink_DeclineUpstream(t *testing.T) {
	link := &PublishableEntityLink{
		UpstreamVersion: Int64(3),
		VersionSynced:   Int64(1),
		VersionDeclined: Int64(2),
	}

	assert.NoError(t, link.DeclineUpstream())
	assert.Equal(t, int64(3), Deref(link.VersionDeclined))
	assert.Equal(t, int64(1), Deref(link.VersionSynced))

	ahead := &PublishableEntityLink{UpstreamVersion: Int64(3), VersionDeclined: Int64(5)}
	assert.ErrorIs(t, ahead.DeclineUpstream(), ErrDeclineRegressed)
	assert.ErrorIs(t, ahead.Validate(), ErrVersionAhead)
}

func TestTaskState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    TaskState
		terminal bool
	}{
		{TaskStatePending, false},
		{TaskStateInProgress, false},
		{TaskStateSucceeded, true},
		{TaskStateFailed, true},
		{TaskStateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
		})
	}

	task := &MigrationTask{}
	task.SetState(TaskStateInProgress)
	assert.Equal(t, "In Progress", task.StateText)
}

func TestLegacyBlock_IntoLink(t *testing.T) {
	block := &LegacyBlock{
		CourseKey:            "course-v1:org+1+1",
		UsageKey:             "block-v1:org+1+1+type@html+block@a",
		UpstreamKey:          "lb:org:lib:html:a",
		UpstreamContextKey:   "lib:org:lib",
		UpstreamContextTitle: "Library",
		UpstreamVersion:      3,
	}

	link := block.IntoLink()
	assert.Equal(t, UpstreamTypeComponent, link.UpstreamType)
	assert.Equal(t, block.CourseKey, link.DownstreamContextKey)
	assert.Equal(t, int64(3), Deref(link.VersionSynced))
	assert.NoError(t, link.Validate())
}

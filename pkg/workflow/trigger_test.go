package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggersMatches(t *testing.T) {
	triggers := &Triggers{
		Push:        &BranchTrigger{Branches: []string{"master"}},
		PullRequest: &BranchTrigger{},
	}

	tests := []struct {
		name  string
		event *Event
		want  bool
	}{
		{
			name:  "push to master matches",
			event: &Event{Type: EventPush, Ref: "refs/heads/master"},
			want:  true,
		},
		{
			name:  "push to feature branch does not match",
			event: &Event{Type: EventPush, Ref: "refs/heads/feature/x"},
			want:  false,
		},
		{
			name:  "any pull request matches",
			event: &Event{Type: EventPullRequest},
			want:  true,
		},
		{
			name:  "pull request with ref matches unfiltered trigger",
			event: &Event{Type: EventPullRequest, Ref: "refs/heads/feature/x"},
			want:  true,
		},
		{
			name:  "schedule event needs a schedule trigger",
			event: &Event{Type: EventSchedule},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, triggers.Matches(tt.event))
		})
	}
}

func TestTriggersMatchesSchedule(t *testing.T) {
	triggers := &Triggers{
		Schedule: []ScheduleTrigger{{Cron: "0 * * * *"}},
	}

	assert.True(t, triggers.Matches(&Event{Type: EventSchedule}))
	assert.False(t, triggers.Matches(&Event{Type: EventPush, Ref: "refs/heads/master"}))
}

func TestTriggersMatchesPushAnyBranch(t *testing.T) {
	triggers := &Triggers{Push: &BranchTrigger{}}

	assert.True(t, triggers.Matches(&Event{Type: EventPush, Ref: "refs/heads/anything"}))
}

func TestTriggersValidate(t *testing.T) {
	t.Run("no triggers is an error", func(t *testing.T) {
		triggers := &Triggers{}
		require.ErrorIs(t, triggers.Validate(), ErrNoTriggers)
	})

	t.Run("empty cron is an error", func(t *testing.T) {
		triggers := &Triggers{Schedule: []ScheduleTrigger{{}}}
		require.ErrorIs(t, triggers.Validate(), ErrCronRequired)
	})

	t.Run("invalid cron is an error", func(t *testing.T) {
		triggers := &Triggers{Schedule: []ScheduleTrigger{{Cron: "not a cron"}}}
		require.Error(t, triggers.Validate())
	})

	t.Run("valid triggers pass", func(t *testing.T) {
		triggers := &Triggers{
			Push:     &BranchTrigger{Branches: []string{"master"}},
			Schedule: []ScheduleTrigger{{Cron: "*/5 * * * *"}},
		}
		require.NoError(t, triggers.Validate())
	})
}

func TestEventBranch(t *testing.T) {
	assert.Equal(t, "master", (&Event{Ref: "refs/heads/master"}).Branch())
	assert.Equal(t, "master", (&Event{Ref: "master"}).Branch())
}

func TestEventValidate(t *testing.T) {
	require.ErrorIs(t, (&Event{}).Validate(), ErrEventTypeRequired)
	require.ErrorIs(t, (&Event{Type: EventPush}).Validate(), ErrEventRefRequired)
	require.NoError(t, (&Event{Type: EventPullRequest}).Validate())
	require.Error(t, (&Event{Type: "deployment"}).Validate())
}

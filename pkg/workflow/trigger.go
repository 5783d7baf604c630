package workflow

import (
	"errors"
	"fmt"
	"slices"

	"github.com/robfig/cron/v3"
)

var (
	// ErrNoTriggers is returned when a workflow declares no triggers
	ErrNoTriggers = errors.New("workflow must declare at least one trigger")
	// ErrCronRequired is returned when a schedule trigger has no cron expression
	ErrCronRequired = errors.New("schedule trigger requires a cron expression")
)

// Triggers declares the events that start a workflow
type Triggers struct {
	Push        *BranchTrigger    `yaml:"push,omitempty"`
	PullRequest *BranchTrigger    `yaml:"pull_request,omitempty"`
	Schedule    []ScheduleTrigger `yaml:"schedule,omitempty"`
}

// BranchTrigger filters push/pull_request events by branch.
// An empty branch list matches every branch.
type BranchTrigger struct {
	Branches []string `yaml:"branches,omitempty"`
}

// ScheduleTrigger fires a workflow on a cron schedule
type ScheduleTrigger struct {
	Cron string `yaml:"cron"`
}

// Matches reports whether the event starts this workflow
func (t *Triggers) Matches(ev *Event) bool {
	switch ev.Type {
	case EventPush:
		return t.Push != nil && t.Push.matchesBranch(ev.Branch())
	case EventPullRequest:
		// Any pull request activity matches; branch filters apply to the
		// target branch when one is carried on the event ref.
		if t.PullRequest == nil {
			return false
		}
		if ev.Ref == "" {
			return true
		}
		return t.PullRequest.matchesBranch(ev.Branch())
	case EventSchedule:
		return len(t.Schedule) > 0
	default:
		return false
	}
}

func (b *BranchTrigger) matchesBranch(branch string) bool {
	if len(b.Branches) == 0 {
		return true
	}

	return slices.Contains(b.Branches, branch)
}

// Validate checks that at least one trigger is declared and that schedule
// expressions parse
func (t *Triggers) Validate() error {
	if t.Push == nil && t.PullRequest == nil && len(t.Schedule) == 0 {
		return ErrNoTriggers
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, s := range t.Schedule {
		if s.Cron == "" {
			return ErrCronRequired
		}
		if _, err := parser.Parse(s.Cron); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.Cron, err)
		}
	}

	return nil
}

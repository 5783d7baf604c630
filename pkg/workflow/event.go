package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEventTypeRequired is returned when an event has no type
	ErrEventTypeRequired = errors.New("event type is required")
	// ErrEventRefRequired is returned when a push event has no ref
	ErrEventRefRequired = errors.New("push events require a ref")
)

// EventType identifies the kind of trigger event
type EventType string

const (
	// EventPush is a push to a branch
	EventPush EventType = "push"
	// EventPullRequest is any pull request activity
	EventPullRequest EventType = "pull_request"
	// EventSchedule is a cron-fired event
	EventSchedule EventType = "schedule"
)

// Event is a trigger event delivered to the coordinator
type Event struct {
	Type       EventType `json:"type" yaml:"type"`
	Ref        string    `json:"ref,omitempty" yaml:"ref,omitempty"`
	SHA        string    `json:"sha,omitempty" yaml:"sha,omitempty"`
	Repository string    `json:"repository,omitempty" yaml:"repository,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitempty" yaml:"-"`

	// Workflow restricts delivery to a single workflow. Set on schedule
	// events so one workflow's cron never fires another's.
	Workflow string `json:"workflow,omitempty" yaml:"workflow,omitempty"`
}

// Branch returns the short branch name for the event ref
func (e *Event) Branch() string {
	return strings.TrimPrefix(e.Ref, "refs/heads/")
}

// Validate checks if the event is well formed
func (e *Event) Validate() error {
	switch e.Type {
	case EventPush:
		if e.Ref == "" {
			return ErrEventRefRequired
		}
	case EventPullRequest, EventSchedule:
		// ref is optional
	case "":
		return ErrEventTypeRequired
	default:
		return fmt.Errorf("unknown event type: %q", e.Type)
	}

	return nil
}

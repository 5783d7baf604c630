package workflow

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNameRequired is returned when a workflow has no name
	ErrNameRequired = errors.New("workflow name is required")
	// ErrNoJobs is returned when a workflow declares no jobs
	ErrNoJobs = errors.New("workflow must declare at least one job")
)

// Workflow is one declarative CI definition: triggers, environment, and a set
// of jobs related by needs
type Workflow struct {
	Name string            `yaml:"name"`
	On   Triggers          `yaml:"on"`
	Env  map[string]string `yaml:"env,omitempty"`
	Jobs map[string]*Job   `yaml:"jobs"`

	// FilePath is the file the workflow was loaded from
	FilePath string `yaml:"-"`
}

// Parse parses and validates a workflow definition
func Parse(content []byte) (*Workflow, error) {
	var w Workflow
	if err := yaml.Unmarshal(content, &w); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if err := w.Validate(); err != nil {
		return nil, err
	}

	return &w, nil
}

// Validate checks if the workflow definition is valid
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return ErrNameRequired
	}

	if len(w.Jobs) == 0 {
		return ErrNoJobs
	}

	if err := w.On.Validate(); err != nil {
		return fmt.Errorf("workflow %s: %w", w.Name, err)
	}

	for name, job := range w.Jobs {
		if job == nil {
			return fmt.Errorf("workflow %s: job %s: %w", w.Name, name, ErrNoSteps)
		}
		if err := job.Validate(); err != nil {
			return fmt.Errorf("workflow %s: job %s: %w", w.Name, name, err)
		}
	}

	// Building the graph validates needs references and rejects cycles
	if _, err := BuildJobGraph(w); err != nil {
		return fmt.Errorf("workflow %s: %w", w.Name, err)
	}

	return nil
}

// Graph returns the needs graph over the workflow's jobs. The workflow must
// have been validated first.
func (w *Workflow) Graph() (*JobGraph, error) {
	return BuildJobGraph(w)
}

package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSteps is returned when a job declares no steps
	ErrNoSteps = errors.New("job must declare at least one step")
	// ErrStepRunRequired is returned when a step has no run command
	ErrStepRunRequired = errors.New("step run command is required")
)

// defaultJobTimeoutMinutes bounds a single job run
const defaultJobTimeoutMinutes = 60

// Job is one unit of work within a workflow. Every matrix entry of the job
// becomes an independent run with its own service containers and checkout.
type Job struct {
	Name           string              `yaml:"name,omitempty"`
	Needs          []string            `yaml:"needs,omitempty"`
	Strategy       *Strategy           `yaml:"strategy,omitempty"`
	Services       map[string]*Service `yaml:"services,omitempty"`
	Steps          []Step              `yaml:"steps"`
	Env            map[string]string   `yaml:"env,omitempty"`
	TimeoutMinutes int                 `yaml:"timeout-minutes,omitempty"`
}

// Step is a single shell command executed in the job workspace. Steps run
// strictly sequentially; the first non-zero exit fails the job.
type Step struct {
	Name             string            `yaml:"name,omitempty"`
	Run              string            `yaml:"run"`
	Env              map[string]string `yaml:"env,omitempty"`
	WorkingDirectory string            `yaml:"working-directory,omitempty"`
}

// Validate checks if the job definition is valid
func (j *Job) Validate() error {
	if len(j.Steps) == 0 {
		return ErrNoSteps
	}

	for i := range j.Steps {
		if j.Steps[i].Run == "" {
			return fmt.Errorf("step %d: %w", i+1, ErrStepRunRequired)
		}
	}

	for name, svc := range j.Services {
		if err := svc.Validate(); err != nil {
			return fmt.Errorf("service %s: %w", name, err)
		}
	}

	if j.TimeoutMinutes == 0 {
		j.TimeoutMinutes = defaultJobTimeoutMinutes
	}

	return nil
}

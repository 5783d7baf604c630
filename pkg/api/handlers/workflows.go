package handlers

import (
	"sort"

	"github.com/gofiber/fiber/v3"
	"github.com/gridci/gridci/pkg/workflow"
)

// WorkflowSummary is the list representation of a loaded workflow
type WorkflowSummary struct {
	Name     string   `json:"name"`
	FilePath string   `json:"file_path"`
	Jobs     []string `json:"jobs"`
}

// WorkflowDetail is the full representation of a loaded workflow
type WorkflowDetail struct {
	Name     string                `json:"name"`
	FilePath string                `json:"file_path"`
	Env      map[string]string     `json:"env,omitempty"`
	Jobs     map[string]*JobDetail `json:"jobs"`
	Triggers workflow.Triggers     `json:"triggers"`
}

// JobDetail describes one job of a workflow, including its expanded matrix
type JobDetail struct {
	Needs   []string         `json:"needs,omitempty"`
	Steps   int              `json:"steps"`
	Matrix  []workflow.Entry `json:"matrix"`
	Timeout int              `json:"timeout_minutes"`
}

// ListWorkflows handles GET /api/v1/workflows
func (s *Server) ListWorkflows(c fiber.Ctx) error {
	summaries := make([]WorkflowSummary, 0, len(s.workflows))

	for name, w := range s.workflows {
		jobs := make([]string, 0, len(w.Jobs))
		for jobName := range w.Jobs {
			jobs = append(jobs, jobName)
		}
		sort.Strings(jobs)

		summaries = append(summaries, WorkflowSummary{
			Name:     name,
			FilePath: w.FilePath,
			Jobs:     jobs,
		})
	}

	// Sort by name for consistent ordering
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"workflows": summaries,
		"total":     len(summaries),
	})
}

// GetWorkflow handles GET /api/v1/workflows/:name
func (s *Server) GetWorkflow(c fiber.Ctx) error {
	w, ok := s.workflows[c.Params("name")]
	if !ok {
		return ErrWorkflowNotFound
	}

	jobs := make(map[string]*JobDetail, len(w.Jobs))
	for jobName, job := range w.Jobs {
		var matrix *workflow.Matrix
		if job.Strategy != nil {
			matrix = job.Strategy.Matrix
		}

		jobs[jobName] = &JobDetail{
			Needs:   job.Needs,
			Steps:   len(job.Steps),
			Matrix:  matrix.Expand(),
			Timeout: job.TimeoutMinutes,
		}
	}

	return c.Status(fiber.StatusOK).JSON(&WorkflowDetail{
		Name:     w.Name,
		FilePath: w.FilePath,
		Env:      w.Env,
		Jobs:     jobs,
		Triggers: w.On,
	})
}

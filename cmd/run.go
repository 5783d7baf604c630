package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gridci/gridci/pkg/containers"
	"github.com/gridci/gridci/pkg/tasks"
	"github.com/gridci/gridci/pkg/worker"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// ErrWorkflowNotFound is returned when the named workflow is not loaded
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrRunFailed is returned when at least one run failed
	ErrRunFailed = errors.New("one or more runs failed")
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	runEventType string
	runRef       string
	runSHA       string
	runRepo      string
	runPaths     []string
	runWorkspace string
)

// runCmd executes one workflow locally, bypassing the queue
//
//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run [workflow]",
	Short: "Execute a workflow locally",
	Long: `Execute a workflow end to end on this machine without a coordinator or
queue: matrix entries run sequentially in needs order, with the same service
containers and environment a worker would provide.`,
	Args: cobra.ExactArgs(1),
	RunE: runLocal,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runEventType, "event", "push", "event type to simulate (push, pull_request, schedule)")
	runCmd.Flags().StringVar(&runRef, "ref", "refs/heads/master", "git ref carried on the event")
	runCmd.Flags().StringVar(&runSHA, "sha", "", "commit to check out")
	runCmd.Flags().StringVar(&runRepo, "repository", "", "clone URL of the repository under CI")
	runCmd.Flags().StringSliceVar(&runPaths, "path", []string{"workflows"}, "workflow directories to scan")
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "workspace root (default is the system temp dir)")
}

func runLocal(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg := &workflow.Config{Paths: runPaths}
	if err := cfg.Validate(); err != nil {
		return err
	}

	workflows, err := workflow.LoadAll(logrus.NewEntry(logger), cfg)
	if err != nil {
		return err
	}

	w, ok := workflows[args[0]]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, args[0])
	}

	ev := &workflow.Event{
		Type:       workflow.EventType(runEventType),
		Ref:        runRef,
		SHA:        runSHA,
		Repository: runRepo,
		ReceivedAt: time.Now().UTC(),
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	if !w.On.Matches(ev) {
		logger.WithFields(logrus.Fields{
			"workflow": w.Name,
			"event":    ev.Type,
		}).Warn("Event does not trigger this workflow, running anyway")
	}

	executor := worker.NewJobExecutor(logger, workflows, containers.NewManager(logger), &worker.Config{
		WorkspaceRoot: runWorkspace,
		Source:        worker.SourceConfig{URL: runRepo},
	})

	return executeJobs(cmd.Context(), w, ev, executor)
}

// executeJobs runs every job of the workflow in needs order, sequentially
// entry by entry. A failed entry fails its job; jobs whose needs did not
// succeed are skipped.
func executeJobs(ctx context.Context, w *workflow.Workflow, ev *workflow.Event, executor *worker.JobExecutor) error {
	names := make([]string, 0, len(w.Jobs))
	for name := range w.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	succeeded := make(map[string]bool, len(names))
	failed := make(map[string]bool, len(names))
	anyFailed := false

	remaining := names
	for len(remaining) > 0 {
		progressed := false
		var next []string

		for _, name := range remaining {
			job := w.Jobs[name]

			blocked := false
			ready := true
			for _, need := range job.Needs {
				if failed[need] {
					blocked = true
				}
				if !succeeded[need] && !failed[need] {
					ready = false
				}
			}

			switch {
			case blocked:
				logger.WithField("job", name).Warn("Skipping job, needed job did not succeed")
				failed[name] = true
				progressed = true
			case ready:
				if runJobLocally(ctx, w, ev, name, executor) {
					succeeded[name] = true
				} else {
					failed[name] = true
					anyFailed = true
				}
				progressed = true
			default:
				next = append(next, name)
			}
		}

		if !progressed {
			break
		}
		remaining = next
	}

	if anyFailed {
		return ErrRunFailed
	}

	return nil
}

func runJobLocally(ctx context.Context, w *workflow.Workflow, ev *workflow.Event, jobName string, executor *worker.JobExecutor) bool {
	job := w.Jobs[jobName]

	var matrix *workflow.Matrix
	if job.Strategy != nil {
		matrix = job.Strategy.Matrix
	}

	ok := true

	for _, entry := range matrix.Expand() {
		log := logger.WithFields(logrus.Fields{
			"job":    jobName,
			"matrix": entry.ID(),
		})
		log.Info("Running job")

		payload := &tasks.JobRunPayload{
			RunID:      uuid.NewString(),
			DeliveryID: "local",
			Workflow:   w.Name,
			Job:        jobName,
			Matrix:     entry,
			Event:      *ev,
			EnqueuedAt: time.Now().UTC(),
		}

		if err := executor.Execute(ctx, payload); err != nil {
			log.WithError(err).Error("Job run failed")
			ok = false

			if job.Strategy.FailFastEnabled() {
				return false
			}
			continue
		}

		log.Info("Job run succeeded")
	}

	return ok
}

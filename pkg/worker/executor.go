// Package worker implements the job execution side of gridci
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gridci/gridci/pkg/containers"
	"github.com/gridci/gridci/pkg/observability"
	"github.com/gridci/gridci/pkg/tasks"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/gridci/gridci/pkg/workflow/rendering"
	"github.com/sirupsen/logrus"
)

// Define static errors
var (
	ErrUnknownWorkflow = errors.New("unknown workflow")
	ErrUnknownJob      = errors.New("unknown job")
)

// JobExecutor executes one job run: workspace checkout, service containers,
// then the steps strictly in declaration order. The first failing phase or
// step fails the run; remaining steps never execute.
type JobExecutor struct {
	log           logrus.FieldLogger
	workflows     map[string]*workflow.Workflow
	containers    containers.Manager
	renderer      *rendering.Engine
	workspaceRoot string
	source        SourceConfig
	runnerEnv     map[string]string
}

// NewJobExecutor creates a new job executor
func NewJobExecutor(
	log logrus.FieldLogger,
	workflows map[string]*workflow.Workflow,
	containerManager containers.Manager,
	cfg *Config,
) *JobExecutor {
	return &JobExecutor{
		log:           log.WithField("component", "executor"),
		workflows:     workflows,
		containers:    containerManager,
		renderer:      rendering.NewEngine(),
		workspaceRoot: cfg.WorkspaceRoot,
		source:        cfg.Source,
		runnerEnv:     cfg.Workflows.Env,
	}
}

// Execute runs one job run task end to end
func (e *JobExecutor) Execute(ctx context.Context, payload *tasks.JobRunPayload) error {
	w, ok := e.workflows[payload.Workflow]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, payload.Workflow)
	}

	job, ok := w.Jobs[payload.Job]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownJob, payload.Workflow, payload.Job)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(job.TimeoutMinutes)*time.Minute)
	defer cancel()

	log := e.log.WithFields(logrus.Fields{
		"workflow": payload.Workflow,
		"job":      payload.Job,
		"matrix":   payload.Matrix.ID(),
	})

	workspace, err := os.MkdirTemp(e.workspaceRoot, "gridci-run-")
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workspace); rmErr != nil {
			log.WithError(rmErr).Warn("Failed to remove workspace")
		}
	}()

	if err := e.checkout(ctx, log, workspace, &payload.Event); err != nil {
		return err
	}

	exprCtx := rendering.BuildContext(w, payload.Job, payload.Matrix, &payload.Event)

	services, err := e.renderServices(job.Services, exprCtx)
	if err != nil {
		return err
	}

	// Services must be up and ready before the first step runs
	started, err := e.containers.StartAll(ctx, services)
	if err != nil {
		return fmt.Errorf("failed to provision services: %w", err)
	}
	defer func() {
		if termErr := started.Terminate(context.WithoutCancel(ctx)); termErr != nil {
			log.WithError(termErr).Error("Failed to tear down services")
		}
	}()

	env, err := e.buildEnv(exprCtx, w.Env, job.Env)
	if err != nil {
		return err
	}

	for i := range job.Steps {
		step := &job.Steps[i]

		if err := e.runStep(ctx, log, workspace, step, env, exprCtx); err != nil {
			observability.RecordStep(payload.Workflow, payload.Job, "failed")
			return err
		}

		observability.RecordStep(payload.Workflow, payload.Job, "succeeded")
	}

	return nil
}

// checkout clones the repository at the triggering commit into the workspace
func (e *JobExecutor) checkout(ctx context.Context, log logrus.FieldLogger, workspace string, ev *workflow.Event) error {
	url := ev.Repository
	if url == "" {
		url = e.source.URL
	}
	if url == "" {
		log.Debug("No source configured, skipping checkout")
		return nil
	}

	if err := e.git(ctx, workspace, "clone", "--quiet", url, "."); err != nil {
		return fmt.Errorf("checkout failed: %w", err)
	}

	if ev.SHA != "" {
		if err := e.git(ctx, workspace, "checkout", "--quiet", ev.SHA); err != nil {
			return fmt.Errorf("checkout of %s failed: %w", ev.SHA, err)
		}
	}

	return nil
}

func (e *JobExecutor) git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, string(output))
	}

	return nil
}

// renderServices resolves templated service declarations against the matrix
// context, e.g. image clickhouse/clickhouse-server:{{ .matrix.clickhouse_version }}
func (e *JobExecutor) renderServices(services map[string]*workflow.Service, exprCtx map[string]any) (map[string]*workflow.Service, error) {
	if len(services) == 0 {
		return nil, nil
	}

	rendered := make(map[string]*workflow.Service, len(services))

	for name, svc := range services {
		image, err := e.renderer.Render(svc.Image, exprCtx)
		if err != nil {
			return nil, fmt.Errorf("service %s image: %w", name, err)
		}

		env := make(map[string]string, len(svc.Env))
		for k, v := range svc.Env {
			value, renderErr := e.renderer.Render(v, exprCtx)
			if renderErr != nil {
				return nil, fmt.Errorf("service %s env %s: %w", name, k, renderErr)
			}
			env[k] = value
		}

		rendered[name] = &workflow.Service{
			Image:  image,
			Ports:  svc.Ports,
			Env:    env,
			Health: svc.Health,
		}
	}

	return rendered, nil
}

// buildEnv merges the process environment with runner, workflow, and job env.
// Values are template-rendered, then $VAR references are expanded against the
// environment built so far, so PYTHONPATH: ${PYTHONPATH}:dbt appends to any
// pre-existing value.
func (e *JobExecutor) buildEnv(exprCtx map[string]any, layers ...map[string]string) (map[string]string, error) {
	merged := environMap()

	all := append([]map[string]string{e.runnerEnv}, layers...)
	for _, layer := range all {
		if err := e.applyEnvLayer(merged, layer, exprCtx); err != nil {
			return nil, err
		}
	}

	return merged, nil
}

func (e *JobExecutor) applyEnvLayer(merged map[string]string, layer map[string]string, exprCtx map[string]any) error {
	for k, v := range layer {
		rendered, err := e.renderer.Render(v, exprCtx)
		if err != nil {
			return fmt.Errorf("env %s: %w", k, err)
		}

		merged[k] = os.Expand(rendered, func(name string) string {
			return merged[name]
		})
	}

	return nil
}

func (e *JobExecutor) runStep(ctx context.Context, log logrus.FieldLogger, workspace string, step *workflow.Step, env map[string]string, exprCtx map[string]any) error {
	name := step.Name
	if name == "" {
		name = step.Run
	}

	command, err := e.renderer.Render(step.Run, exprCtx)
	if err != nil {
		return fmt.Errorf("step %q: %w", name, err)
	}

	stepEnv := cloneEnv(env)
	if err := e.applyEnvLayer(stepEnv, step.Env, exprCtx); err != nil {
		return fmt.Errorf("step %q: %w", name, err)
	}

	dir := workspace
	if step.WorkingDirectory != "" {
		dir = filepath.Join(workspace, step.WorkingDirectory)
	}

	log.WithField("step", name).Info("Running step")

	start := time.Now()

	// #nosec G204 -- Step commands come from operator-provided workflow files
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = flattenEnv(stepEnv)

	output, err := cmd.CombinedOutput()
	if err != nil {
		log.WithFields(logrus.Fields{
			"step":     name,
			"output":   string(output),
			"duration": time.Since(start),
		}).WithError(err).Error("Step failed")

		return fmt.Errorf("step %q failed: %w", name, err)
	}

	log.WithFields(logrus.Fields{
		"step":     name,
		"duration": time.Since(start),
	}).Info("Step succeeded")

	return nil
}

package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/gridci/gridci/pkg/workflow"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// ErrValidationFailed is returned when one or more workflow files are invalid
var ErrValidationFailed = errors.New("workflow validation failed")

//nolint:gochecknoglobals // Cobra flags are typically global
var workflowPaths []string

// workflowsCmd represents the workflows command group
//
//nolint:gochecknoglobals // Cobra commands are typically global
var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Manage and inspect workflow definitions",
	Long:  `Commands for listing and validating workflow definition files.`,
}

// workflowsListCmd lists all discovered workflows
//
//nolint:gochecknoglobals // Cobra commands are typically global
var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all discovered workflows",
	Long:  `List all discovered workflows with their triggers, jobs, and matrix sizes.`,
	RunE:  runWorkflowsList,
}

// workflowsValidateCmd validates workflow definitions
//
//nolint:gochecknoglobals // Cobra commands are typically global
var workflowsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate workflow definitions",
	Long:  `Validate workflow definition files including triggers, needs references, and matrix declarations.`,
	RunE:  runWorkflowsValidate,
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsValidateCmd)

	workflowsCmd.PersistentFlags().StringSliceVar(&workflowPaths, "path", []string{"workflows"}, "workflow directories to scan")
}

func runWorkflowsList(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg := &workflow.Config{Paths: workflowPaths}
	if err := cfg.Validate(); err != nil {
		return err
	}

	workflows, err := workflow.LoadAll(logrus.NewEntry(logger), cfg)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(workflows))
	for name := range workflows {
		names = append(names, name)
	}
	sort.Strings(names)

	// Print table
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WORKFLOW\tFILE\tJOBS\tRUNS PER DELIVERY")
	for _, name := range names {
		wf := workflows[name]

		jobs := make([]string, 0, len(wf.Jobs))
		total := 0
		for jobName, job := range wf.Jobs {
			jobs = append(jobs, jobName)

			var matrix *workflow.Matrix
			if job.Strategy != nil {
				matrix = job.Strategy.Matrix
			}
			total += len(matrix.Expand())
		}
		sort.Strings(jobs)

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", name, wf.FilePath, strings.Join(jobs, ","), total)
	}
	_ = w.Flush()

	return nil
}

func runWorkflowsValidate(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg := &workflow.Config{Paths: workflowPaths}
	if err := cfg.Validate(); err != nil {
		return err
	}

	discovery := workflow.NewDiscovery(cfg)
	files, err := discovery.DiscoverAll()
	if err != nil {
		return err
	}

	valid := 0
	invalid := 0

	for _, file := range files {
		content, readErr := os.ReadFile(file) //nolint:gosec // User-provided workflow path
		if readErr != nil {
			return readErr
		}

		if _, parseErr := workflow.Parse(content); parseErr != nil {
			invalid++
			fmt.Printf("✗ %s: %v\n", file, parseErr)
			continue
		}

		valid++
		fmt.Printf("✓ %s: valid\n", file)
	}

	// Summary
	fmt.Printf("\n%d valid, %d errors\n", valid, invalid)

	if invalid > 0 {
		return fmt.Errorf("%w: %d errors", ErrValidationFailed, invalid)
	}

	return nil
}

package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/heimdalr/dag"
)

var (
	// ErrNonExistentNeed is returned when a job needs a job that doesn't exist
	ErrNonExistentNeed = errors.New("job needs non-existent job")
)

// JobGraph is the dependency graph over a workflow's jobs, built from their
// needs declarations
type JobGraph struct {
	dag *dag.DAG
}

// BuildJobGraph constructs the needs graph for a workflow. Cycles and
// references to unknown jobs are errors.
func BuildJobGraph(w *Workflow) (*JobGraph, error) {
	d := dag.NewDAG()

	for name := range w.Jobs {
		if err := d.AddVertexByID(name, name); err != nil {
			return nil, fmt.Errorf("failed to add job %s: %w", name, err)
		}
	}

	for name, job := range w.Jobs {
		for _, need := range job.Needs {
			if _, err := d.GetVertex(need); err != nil {
				return nil, fmt.Errorf("job %s: %w: %s", name, ErrNonExistentNeed, need)
			}

			// AddEdge rejects edges that would introduce a cycle
			if err := d.AddEdge(need, name); err != nil {
				return nil, fmt.Errorf("job %s: %w", name, err)
			}
		}
	}

	return &JobGraph{dag: d}, nil
}

// Roots returns the jobs with no needs, sorted for determinism
func (g *JobGraph) Roots() []string {
	roots := g.dag.GetRoots()

	names := make([]string, 0, len(roots))
	for id := range roots {
		names = append(names, id)
	}
	sort.Strings(names)

	return names
}

// Dependents returns the jobs that directly need the given job
func (g *JobGraph) Dependents(name string) []string {
	children, err := g.dag.GetChildren(name)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(children))
	for id := range children {
		names = append(names, id)
	}
	sort.Strings(names)

	return names
}

// AllDependents returns every job downstream of the given job
func (g *JobGraph) AllDependents(name string) []string {
	descendants, err := g.dag.GetDescendants(name)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(descendants))
	for id := range descendants {
		names = append(names, id)
	}
	sort.Strings(names)

	return names
}

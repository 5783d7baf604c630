// Package rendering provides template rendering for workflow expressions
package rendering

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/gridci/gridci/pkg/workflow"
)

// Engine renders workflow expressions (service images, step commands, env
// values) with Sprig functions
type Engine struct {
	funcMap template.FuncMap
}

// NewEngine creates a new template engine with Sprig functions
func NewEngine() *Engine {
	return &Engine{
		funcMap: sprig.TxtFuncMap(),
	}
}

// Render renders a template with the given context. Strings without template
// actions pass through unchanged.
func (e *Engine) Render(content string, ctx map[string]any) (string, error) {
	if !strings.Contains(content, "{{") {
		return content, nil
	}

	tmpl, err := template.New("expr").Funcs(e.funcMap).Option("missingkey=error").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// BuildContext builds the expression context for one job run. Matrix keys are
// exposed with dashes normalized to underscores so that
// "python-version: 3.8" is addressable as {{ .matrix.python_version }}.
func BuildContext(w *workflow.Workflow, jobName string, entry workflow.Entry, ev *workflow.Event) map[string]any {
	matrix := make(map[string]any, len(entry))
	for k, v := range entry {
		matrix[strings.ReplaceAll(k, "-", "_")] = v
	}

	ctx := map[string]any{
		"matrix": matrix,
		"workflow": map[string]any{
			"name": w.Name,
		},
		"job": map[string]any{
			"name": jobName,
		},
	}

	if ev != nil {
		ctx["event"] = map[string]any{
			"type":       string(ev.Type),
			"ref":        ev.Ref,
			"branch":     ev.Branch(),
			"sha":        ev.SHA,
			"repository": ev.Repository,
		}
	}

	return ctx
}

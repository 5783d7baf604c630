package testutil

import (
	"testing"

	"github.com/gridci/gridci/pkg/workflow"
	"github.com/stretchr/testify/require"
)

// ParseWorkflow parses a workflow definition, failing the test on error
func ParseWorkflow(t *testing.T, content string) *workflow.Workflow {
	t.Helper()

	w, err := workflow.Parse([]byte(content))
	require.NoError(t, err)

	return w
}

// BoolPtr returns a pointer to the given bool, for strategy fail-fast fields
func BoolPtr(b bool) *bool {
	return &b
}

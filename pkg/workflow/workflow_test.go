package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const integrationWorkflow = `
name: integration

on:
  pull_request: {}
  push:
    branches:
      - master

jobs:
  integration-tests:
    strategy:
      fail-fast: false
      matrix:
        include:
          - python-version: "3.8"
            clickhouse-version: "20.11"
          - python-version: "3.9.6"
            clickhouse-version: "20.11"
          - python-version: "3.8"
            clickhouse-version: "20.12"
          - python-version: "3.9.6"
            clickhouse-version: "20.12"
          - python-version: "3.8"
            clickhouse-version: "21"
          - python-version: "3.9.6"
            clickhouse-version: "21"
          - python-version: "3.8"
            clickhouse-version: "21.1"
          - python-version: "3.9.6"
            clickhouse-version: "21.1"
    services:
      clickhouse:
        image: "yandex/clickhouse-server:{{ .matrix.clickhouse_version }}"
        ports:
          - "9000:9000"
    steps:
      - name: Install dependencies
        run: pip install -r dev_requirements.txt
      - name: Run integration tests
        run: pytest test/integration/clickhouse.dbtspec
        env:
          PYTHONPATH: "${PYTHONPATH}:dbt"
`

func TestParseIntegrationWorkflow(t *testing.T) {
	w, err := Parse([]byte(integrationWorkflow))
	require.NoError(t, err)

	assert.Equal(t, "integration", w.Name)
	assert.NotNil(t, w.On.Push)
	assert.Equal(t, []string{"master"}, w.On.Push.Branches)
	assert.NotNil(t, w.On.PullRequest)

	job := w.Jobs["integration-tests"]
	require.NotNil(t, job)

	require.NotNil(t, job.Strategy)
	assert.False(t, job.Strategy.FailFastEnabled())

	entries := job.Strategy.Matrix.Expand()
	assert.Len(t, entries, 8)

	svc := job.Services["clickhouse"]
	require.NotNil(t, svc)
	assert.Equal(t, []string{"9000:9000"}, svc.Ports)

	require.Len(t, job.Steps, 2)
	assert.Equal(t, "${PYTHONPATH}:dbt", job.Steps[1].Env["PYTHONPATH"])

	// Timeout default applied during validation
	assert.Equal(t, 60, job.TimeoutMinutes)
}

func TestWorkflowValidate(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		_, err := Parse([]byte(`
on:
  push: {}
jobs:
  a:
    steps:
      - run: "true"
`))
		require.ErrorIs(t, err, ErrNameRequired)
	})

	t.Run("no jobs", func(t *testing.T) {
		_, err := Parse([]byte(`
name: empty
on:
  push: {}
jobs: {}
`))
		require.ErrorIs(t, err, ErrNoJobs)
	})

	t.Run("no triggers", func(t *testing.T) {
		_, err := Parse([]byte(`
name: untriggered
jobs:
  a:
    steps:
      - run: "true"
`))
		require.ErrorIs(t, err, ErrNoTriggers)
	})

	t.Run("step without run command", func(t *testing.T) {
		_, err := Parse([]byte(`
name: bad-step
on:
  push: {}
jobs:
  a:
    steps:
      - name: does nothing
`))
		require.ErrorIs(t, err, ErrStepRunRequired)
	})

	t.Run("unknown needs reference", func(t *testing.T) {
		_, err := Parse([]byte(`
name: bad-needs
on:
  push: {}
jobs:
  a:
    needs: [missing]
    steps:
      - run: "true"
`))
		require.ErrorIs(t, err, ErrNonExistentNeed)
	})

	t.Run("needs cycle", func(t *testing.T) {
		_, err := Parse([]byte(`
name: cyclic
on:
  push: {}
jobs:
  a:
    needs: [b]
    steps:
      - run: "true"
  b:
    needs: [a]
    steps:
      - run: "true"
`))
		require.Error(t, err)
	})
}

func TestJobGraph(t *testing.T) {
	w, err := Parse([]byte(`
name: pipeline
on:
  push: {}
jobs:
  build:
    steps:
      - run: make build
  test:
    needs: [build]
    steps:
      - run: make test
  publish:
    needs: [test]
    steps:
      - run: make publish
`))
	require.NoError(t, err)

	graph, err := w.Graph()
	require.NoError(t, err)

	assert.Equal(t, []string{"build"}, graph.Roots())
	assert.Equal(t, []string{"test"}, graph.Dependents("build"))
	assert.ElementsMatch(t, []string{"test", "publish"}, graph.AllDependents("build"))
}

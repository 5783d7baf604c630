package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/gridci/gridci/internal/testutil"
	r "github.com/gridci/gridci/pkg/redis"
	"github.com/gridci/gridci/pkg/runs"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWorkflow = `
name: integration
on:
  pull_request: {}
jobs:
  integration-tests:
    strategy:
      matrix:
        include:
          - python-version: "3.8"
          - python-version: "3.9.6"
    steps:
      - run: pytest test/integration/clickhouse.dbtspec
`

// stubSink implements EventSink for handler tests
type stubSink struct {
	deliveries []string
	events     []*workflow.Event
}

func (s *stubSink) HandleEvent(_ context.Context, ev *workflow.Event) ([]string, error) {
	s.events = append(s.events, ev)
	return s.deliveries, nil
}

func newTestApp(t *testing.T, sink *stubSink) (*fiber.App, runs.Store) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	w := testutil.ParseWorkflow(t, testWorkflow)
	client := testutil.NewRedisClient(t)
	store := runs.NewStore(client, &r.Config{Prefix: "test"})

	server := NewServer(sink, store, map[string]*workflow.Workflow{w.Name: w}, log)

	app := fiber.New()
	server.RegisterRoutes(app.Group("/api/v1"))

	return app, store
}

func TestPostEvent(t *testing.T) {
	t.Run("valid event returns deliveries", func(t *testing.T) {
		sink := &stubSink{deliveries: []string{"d-1"}}
		app, _ := newTestApp(t, sink)

		req := httptest.NewRequest("POST", "/api/v1/events",
			strings.NewReader(`{"type": "push", "ref": "refs/heads/master", "sha": "abc123"}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var response EventResponse
		require.NoError(t, json.Unmarshal(body, &response))
		assert.Equal(t, []string{"d-1"}, response.Deliveries)

		require.Len(t, sink.events, 1)
		assert.Equal(t, workflow.EventPush, sink.events[0].Type)
		assert.Equal(t, "refs/heads/master", sink.events[0].Ref)
	})

	t.Run("event matching nothing returns empty list", func(t *testing.T) {
		app, _ := newTestApp(t, &stubSink{})

		req := httptest.NewRequest("POST", "/api/v1/events",
			strings.NewReader(`{"type": "pull_request"}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var response EventResponse
		require.NoError(t, json.Unmarshal(body, &response))
		assert.Empty(t, response.Deliveries)
	})

	t.Run("invalid event type is rejected", func(t *testing.T) {
		sink := &stubSink{}
		app, _ := newTestApp(t, sink)

		req := httptest.NewRequest("POST", "/api/v1/events",
			strings.NewReader(`{"type": "deployment"}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, sink.events)
	})

	t.Run("push without ref is rejected", func(t *testing.T) {
		app, _ := newTestApp(t, &stubSink{})

		req := httptest.NewRequest("POST", "/api/v1/events",
			strings.NewReader(`{"type": "push"}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetRun(t *testing.T) {
	app, store := newTestApp(t, &stubSink{})

	require.NoError(t, store.Create(context.Background(), &runs.Run{
		ID:         "run-1",
		DeliveryID: "d-1",
		Workflow:   "integration",
		Job:        "integration-tests",
		Matrix:     workflow.Entry{"python-version": "3.8"},
	}))

	t.Run("existing run", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/runs/run-1", http.NoBody)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var run runs.Run
		require.NoError(t, json.Unmarshal(body, &run))
		assert.Equal(t, "integration", run.Workflow)
		assert.Equal(t, runs.StatusPending, run.Status)
	})

	t.Run("unknown run is 404", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/runs/missing", http.NoBody)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestListRuns(t *testing.T) {
	app, store := newTestApp(t, &stubSink{})
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.Create(ctx, &runs.Run{ID: id, DeliveryID: "d-1", Workflow: "integration"}))
	}
	require.NoError(t, store.Create(ctx, &runs.Run{ID: "r4", DeliveryID: "d-2", Workflow: "other"}))

	t.Run("limit applies", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/runs?limit=2", http.NoBody)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var response struct {
			Runs  []*runs.Run `json:"runs"`
			Total int         `json:"total"`
		}
		require.NoError(t, json.Unmarshal(body, &response))
		assert.Equal(t, 2, response.Total)
	})

	t.Run("workflow filter applies", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/runs?workflow=other", http.NoBody)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var response struct {
			Runs  []*runs.Run `json:"runs"`
			Total int         `json:"total"`
		}
		require.NoError(t, json.Unmarshal(body, &response))
		require.Equal(t, 1, response.Total)
		assert.Equal(t, "r4", response.Runs[0].ID)
	})

	t.Run("delivery filter applies", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/runs?delivery=d-2", http.NoBody)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var response struct {
			Runs  []*runs.Run `json:"runs"`
			Total int         `json:"total"`
		}
		require.NoError(t, json.Unmarshal(body, &response))
		require.Equal(t, 1, response.Total)
		assert.Equal(t, "r4", response.Runs[0].ID)
	})

	t.Run("status filter applies", func(t *testing.T) {
		require.NoError(t, store.Finish(ctx, "r1", runs.StatusSucceeded, ""))

		req := httptest.NewRequest("GET", "/api/v1/runs?status=succeeded", http.NoBody)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var response struct {
			Runs  []*runs.Run `json:"runs"`
			Total int         `json:"total"`
		}
		require.NoError(t, json.Unmarshal(body, &response))
		require.Equal(t, 1, response.Total)
		assert.Equal(t, "r1", response.Runs[0].ID)
	})

	t.Run("invalid limit is rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/runs?limit=zero", http.NoBody)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetDelivery(t *testing.T) {
	app, store := newTestApp(t, &stubSink{})
	ctx := context.Background()

	require.NoError(t, store.SaveDelivery(ctx, &runs.Delivery{
		ID:       "d-1",
		Workflow: "integration",
		Jobs:     []string{"integration-tests"},
	}))
	require.NoError(t, store.Create(ctx, &runs.Run{ID: "r1", DeliveryID: "d-1", Workflow: "integration"}))

	req := httptest.NewRequest("GET", "/api/v1/deliveries/d-1", http.NoBody)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var response struct {
		Delivery *runs.Delivery `json:"delivery"`
		Runs     []*runs.Run    `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, "integration", response.Delivery.Workflow)
	require.Len(t, response.Runs, 1)
	assert.Equal(t, "r1", response.Runs[0].ID)
}

func TestListWorkflows(t *testing.T) {
	app, _ := newTestApp(t, &stubSink{})

	req := httptest.NewRequest("GET", "/api/v1/workflows", http.NoBody)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var response struct {
		Workflows []WorkflowSummary `json:"workflows"`
		Total     int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &response))
	require.Equal(t, 1, response.Total)
	assert.Equal(t, "integration", response.Workflows[0].Name)
	assert.Equal(t, []string{"integration-tests"}, response.Workflows[0].Jobs)
}

func TestGetWorkflow(t *testing.T) {
	app, _ := newTestApp(t, &stubSink{})

	t.Run("existing workflow includes expanded matrix", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/workflows/integration", http.NoBody)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var detail WorkflowDetail
		require.NoError(t, json.Unmarshal(body, &detail))
		require.Contains(t, detail.Jobs, "integration-tests")
		assert.Len(t, detail.Jobs["integration-tests"].Matrix, 2)
	})

	t.Run("unknown workflow is 404", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/workflows/missing", http.NoBody)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

// Package handlers implements the request handlers for the GridCI API.
package handlers

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/gridci/gridci/pkg/runs"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/sirupsen/logrus"
)

// EventSink accepts trigger events and schedules the runs they produce
type EventSink interface {
	HandleEvent(ctx context.Context, ev *workflow.Event) ([]string, error)
}

// Server holds the dependencies shared by all handlers
type Server struct {
	sink      EventSink
	store     runs.Store
	workflows map[string]*workflow.Workflow
	log       logrus.FieldLogger
}

// NewServer creates a new API server instance
func NewServer(sink EventSink, store runs.Store, workflows map[string]*workflow.Workflow, log logrus.FieldLogger) *Server {
	return &Server{
		sink:      sink,
		store:     store,
		workflows: workflows,
		log:       log.WithField("component", "api.handlers"),
	}
}

// RegisterRoutes attaches all handlers to the given router group
func (s *Server) RegisterRoutes(router fiber.Router) {
	router.Post("/events", s.PostEvent)
	router.Get("/runs", s.ListRuns)
	router.Get("/runs/:run_id", s.GetRun)
	router.Get("/deliveries/:delivery_id", s.GetDelivery)
	router.Get("/workflows", s.ListWorkflows)
	router.Get("/workflows/:name", s.GetWorkflow)
}

package handlers

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gridci/gridci/pkg/workflow"
)

// EventRequest is the body of POST /api/v1/events
type EventRequest struct {
	Type       string `json:"type"`
	Ref        string `json:"ref,omitempty"`
	SHA        string `json:"sha,omitempty"`
	Repository string `json:"repository,omitempty"`
}

// EventResponse reports the deliveries an event produced
type EventResponse struct {
	Deliveries []string `json:"deliveries"`
}

// PostEvent handles POST /api/v1/events
func (s *Server) PostEvent(c fiber.Ctx) error {
	var req EventRequest
	if err := c.Bind().Body(&req); err != nil {
		return ErrInvalidEvent
	}

	ev := &workflow.Event{
		Type:       workflow.EventType(req.Type),
		Ref:        req.Ref,
		SHA:        req.SHA,
		Repository: req.Repository,
		ReceivedAt: time.Now().UTC(),
	}

	if err := ev.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	deliveries, err := s.sink.HandleEvent(c.Context(), ev)
	if err != nil {
		s.log.WithError(err).Error("Failed to handle event")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to schedule runs")
	}

	if deliveries == nil {
		deliveries = []string{}
	}

	return c.Status(fiber.StatusAccepted).JSON(EventResponse{Deliveries: deliveries})
}

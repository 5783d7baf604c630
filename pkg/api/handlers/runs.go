package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gridci/gridci/pkg/runs"
)

const defaultRunListLimit = 50

// ListRuns handles GET /api/v1/runs
func (s *Server) ListRuns(c fiber.Ctx) error {
	limit := defaultRunListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	var (
		list []*runs.Run
		err  error
	)

	if deliveryFilter := c.Query("delivery"); deliveryFilter != "" {
		list, err = s.store.ListByDelivery(c.Context(), deliveryFilter)
	} else {
		list, err = s.store.ListRecent(c.Context(), limit)
	}
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list runs")
	}

	workflowFilter := c.Query("workflow")
	statusFilter := c.Query("status")

	if workflowFilter != "" || statusFilter != "" {
		filtered := make([]*runs.Run, 0, len(list))
		for _, run := range list {
			if workflowFilter != "" && run.Workflow != workflowFilter {
				continue
			}
			if statusFilter != "" && string(run.Status) != statusFilter {
				continue
			}
			filtered = append(filtered, run)
		}
		list = filtered
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"runs":  list,
		"total": len(list),
	})
}

// GetRun handles GET /api/v1/runs/:run_id
func (s *Server) GetRun(c fiber.Ctx) error {
	run, err := s.store.Get(c.Context(), c.Params("run_id"))
	if err != nil {
		if errors.Is(err, runs.ErrRunNotFound) {
			return ErrRunNotFound
		}
		s.log.WithError(err).Error("Failed to get run")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to get run")
	}

	return c.Status(fiber.StatusOK).JSON(run)
}

// GetDelivery handles GET /api/v1/deliveries/:delivery_id
func (s *Server) GetDelivery(c fiber.Ctx) error {
	deliveryID := c.Params("delivery_id")

	delivery, err := s.store.GetDelivery(c.Context(), deliveryID)
	if err != nil {
		if errors.Is(err, runs.ErrDeliveryNotFound) {
			return ErrDeliveryNotFound
		}
		s.log.WithError(err).Error("Failed to get delivery")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to get delivery")
	}

	deliveryRuns, err := s.store.ListByDelivery(c.Context(), deliveryID)
	if err != nil {
		s.log.WithError(err).Error("Failed to list delivery runs")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list delivery runs")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"delivery": delivery,
		"runs":     deliveryRuns,
	})
}

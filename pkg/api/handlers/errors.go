package handlers

import "github.com/gofiber/fiber/v3"

// ErrRunNotFound is returned when a run ID does not exist
var ErrRunNotFound = fiber.NewError(fiber.StatusNotFound, "run not found")

// ErrDeliveryNotFound is returned when a delivery ID does not exist
var ErrDeliveryNotFound = fiber.NewError(fiber.StatusNotFound, "delivery not found")

// ErrWorkflowNotFound is returned when a workflow name does not exist
var ErrWorkflowNotFound = fiber.NewError(fiber.StatusNotFound, "workflow not found")

// ErrInvalidEvent is returned when an event payload fails validation
var ErrInvalidEvent = fiber.NewError(fiber.StatusBadRequest, "invalid event payload")

package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-points-api/internal/dto"
	"github.com/noah-isme/activity-points-api/internal/middleware"
	"github.com/noah-isme/activity-points-api/internal/utils"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func statusForKind(kind workflow.Kind) int {
	switch kind {
	case workflow.KindNotFound:
		return fiber.StatusNotFound
	case workflow.KindForbidden:
		return fiber.StatusForbidden
	case workflow.KindInvalidPayload:
		return fiber.StatusUnprocessableEntity
	case workflow.KindAlreadyFinalized, workflow.KindContention:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// sendServiceError renders workflow errors with their kind and the caller's
// legal options; validation failures become 400 and anything else 500.
func sendServiceError(c *fiber.Ctx, logger *zerolog.Logger, err error, entity *dto.EntityResponse, fallback string) error {
	if isValidationError(err) {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", err.Error())
	}

	var wfErr *workflow.Error
	if !errors.As(err, &wfErr) {
		logger.Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}

	status := statusForKind(wfErr.Kind)
	if status >= fiber.StatusInternalServerError {
		logger.Error().Err(err).Str("kind", string(wfErr.Kind)).Msg(fallback)
	}

	available := wfErr.Available
	if available == nil {
		available = []workflow.Option{}
	}

	return utils.Fail(c, status, wfErr.Error(), dto.WorkflowErrorResponse{
		Kind:      string(wfErr.Kind),
		Message:   wfErr.Message,
		Available: available,
		Entity:    entity,
	})
}

package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-points-api/internal/dto"
	"github.com/noah-isme/activity-points-api/internal/middleware"
	"github.com/noah-isme/activity-points-api/internal/service"
	"github.com/noah-isme/activity-points-api/internal/utils"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

// WorkflowHandler exposes transition requests and the policy table.
type WorkflowHandler struct {
	service   service.WorkflowService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewWorkflowHandler constructs the workflow handler.
func NewWorkflowHandler(service service.WorkflowService, validate *validator.Validate, logger zerolog.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "workflow_handler").Logger(),
	}
}

// Register attaches the workflow routes. guards run before the transition
// endpoint only.
func (h *WorkflowHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/workflow/policy", h.policy)

	handlers := append([]fiber.Handler{middleware.RequireIdentity()}, guards...)
	handlers = append(handlers, h.transition)
	router.Post("/entities/:id/transitions", handlers...)
}

func (h *WorkflowHandler) policy(c *fiber.Ctx) error {
	edges := h.service.Policy().Edges(workflow.EntityType(c.Query("type")))
	return utils.SendSuccess(c, "workflow policy", dto.PolicyResponse{Edges: edges})
}

func (h *WorkflowHandler) transition(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", err.Error())
	}

	actor := middleware.ActorFromContext(c)
	result, err := h.service.RequestTransition(c.UserContext(), actor, c.Params("id"), workflow.Action(req.Action), req.Payload)
	if err != nil {
		var entity *dto.EntityResponse
		if result.Snapshot.ID != "" {
			current := h.entityResponse(result.Snapshot, actor)
			entity = &current
		}
		return sendServiceError(c, logger, err, entity, "failed to apply transition")
	}

	response := dto.TransitionResponse{
		Entity:   h.entityResponse(result.Snapshot, actor),
		Action:   string(result.Edge.Action),
		From:     string(result.Edge.From),
		To:       string(result.Edge.To),
		Replayed: result.Replayed,
		Attempts: result.Attempts,
	}

	message := "transition applied"
	if result.Replayed {
		message = "transition already applied"
	}
	return utils.SendSuccess(c, message, response)
}

func (h *WorkflowHandler) entityResponse(snapshot workflow.Snapshot, actor workflow.Actor) dto.EntityResponse {
	response := dto.NewEntityResponse(snapshot)
	response.Available = h.service.Policy().AvailableFor(snapshot, actor.Role)
	return response
}

package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-points-api/internal/dto"
	"github.com/noah-isme/activity-points-api/internal/middleware"
	"github.com/noah-isme/activity-points-api/internal/service"
	"github.com/noah-isme/activity-points-api/internal/utils"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

// EntityHandler exposes creation and read endpoints for workflow entities.
type EntityHandler struct {
	service service.EntityService
	logger  zerolog.Logger
}

// NewEntityHandler constructs the entity handler.
func NewEntityHandler(service service.EntityService, logger zerolog.Logger) *EntityHandler {
	return &EntityHandler{
		service: service,
		logger:  logger.With().Str("component", "entity_handler").Logger(),
	}
}

// Register attaches producer and query routes.
func (h *EntityHandler) Register(router fiber.Router) {
	students := middleware.RequireRole(workflow.RoleStudent)
	staff := middleware.RequireRole(workflow.RoleProctor, workflow.RoleHOD)
	authenticated := middleware.RequireIdentity()

	router.Post("/claims", students, h.createClaim)
	router.Post("/documents", students, h.createDocument)
	router.Post("/events", staff, h.createEvent)
	router.Post("/categories", staff, h.createCategory)

	router.Get("/entities", authenticated, h.list)
	router.Get("/entities/:id", authenticated, h.get)
	router.Get("/entities/:id/history", authenticated, h.history)
	router.Get("/students/:id/points", authenticated, h.points)
	router.Get("/audit", middleware.RequireRole(workflow.RoleAdmin), h.audit)
}

func (h *EntityHandler) createClaim(c *fiber.Ctx) error {
	var req dto.CreateClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	entity, err := h.service.CreateClaim(c.UserContext(), middleware.ActorFromContext(c), req)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, nil, "failed to create claim")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "claim submitted", entity)
}

func (h *EntityHandler) createDocument(c *fiber.Ctx) error {
	var req dto.CreateDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	entity, err := h.service.CreateDocument(c.UserContext(), middleware.ActorFromContext(c), req)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, nil, "failed to register document")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "document submitted", entity)
}

func (h *EntityHandler) createEvent(c *fiber.Ctx) error {
	var req dto.CreateEventRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	entity, err := h.service.CreateEvent(c.UserContext(), middleware.ActorFromContext(c), req)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, nil, "failed to create event")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "event proposed", entity)
}

func (h *EntityHandler) createCategory(c *fiber.Ctx) error {
	var req dto.CreateCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	entity, err := h.service.CreateCategory(c.UserContext(), middleware.ActorFromContext(c), req)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, nil, "failed to create category")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "category proposed", entity)
}

func (h *EntityHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}

	req := dto.EntityListRequest{
		Page:     page,
		PageSize: pageSize,
		Type:     c.Query("type"),
		State:    c.Query("state"),
		Owner:    c.Query("owner"),
	}

	// students only ever see their own records
	actor := middleware.ActorFromContext(c)
	if actor.Role == workflow.RoleStudent {
		req.Owner = actor.ID
	}

	result, err := h.service.List(c.UserContext(), req)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, nil, "failed to list entities")
	}
	return utils.OK(c, result.Items, "entities retrieved", result.Pagination)
}

func (h *EntityHandler) get(c *fiber.Ctx) error {
	actor := middleware.ActorFromContext(c)
	entity, err := h.service.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, nil, "failed to load entity")
	}
	if actor.Role == workflow.RoleStudent && entity.OwnerRef != actor.ID {
		return sendServiceError(c, requestLogger(h.logger, c), workflow.ErrNotFound.WithMessagef("entity %q not found", c.Params("id")), nil, "")
	}
	return utils.SendSuccess(c, "entity retrieved", entity)
}

func (h *EntityHandler) history(c *fiber.Ctx) error {
	actor := middleware.ActorFromContext(c)
	if actor.Role == workflow.RoleStudent {
		entity, err := h.service.Get(c.UserContext(), actor, c.Params("id"))
		if err != nil || entity.OwnerRef != actor.ID {
			return sendServiceError(c, requestLogger(h.logger, c), workflow.ErrNotFound.WithMessagef("entity %q not found", c.Params("id")), nil, "")
		}
	}

	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}

	result, err := h.service.History(c.UserContext(), c.Params("id"), page, pageSize)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, nil, "failed to load history")
	}
	return utils.OK(c, result.Items, "history retrieved", result.Pagination)
}

func (h *EntityHandler) points(c *fiber.Ctx) error {
	actor := middleware.ActorFromContext(c)
	studentID := c.Params("id")
	if actor.Role == workflow.RoleStudent && studentID != actor.ID {
		return utils.SendError(c, fiber.StatusForbidden, "students may only view their own points")
	}

	summary, err := h.service.PointsSummary(c.UserContext(), studentID)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, nil, "failed to compute points summary")
	}
	return utils.OK(c, summary, "points summary", fiber.Map{"cache_hit": summary.CacheHit})
}

func (h *EntityHandler) audit(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}

	result, err := h.service.AuditTrail(c.UserContext(), dto.AuditListRequest{
		Page:     page,
		PageSize: pageSize,
		Actor:    c.Query("actor"),
		Outcome:  c.Query("outcome"),
		Entity:   c.Query("entity"),
		Type:     c.Query("type"),
	})
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, nil, "failed to load audit trail")
	}
	return utils.OK(c, result.Items, "audit trail retrieved", result.Pagination)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/activity-points-api/internal/dto"
	"github.com/noah-isme/activity-points-api/internal/observability"
	"github.com/noah-isme/activity-points-api/internal/repository"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

// EntityService creates workflow records at their initial state and answers
// read queries. It never changes the state of an existing record.
type EntityService interface {
	TransitionListener
	CreateClaim(ctx context.Context, actor workflow.Actor, payload dto.CreateClaimRequest) (dto.EntityResponse, error)
	CreateDocument(ctx context.Context, actor workflow.Actor, payload dto.CreateDocumentRequest) (dto.EntityResponse, error)
	CreateEvent(ctx context.Context, actor workflow.Actor, payload dto.CreateEventRequest) (dto.EntityResponse, error)
	CreateCategory(ctx context.Context, actor workflow.Actor, payload dto.CreateCategoryRequest) (dto.EntityResponse, error)
	Get(ctx context.Context, actor workflow.Actor, id string) (dto.EntityResponse, error)
	List(ctx context.Context, req dto.EntityListRequest) (dto.EntityListResponse, error)
	History(ctx context.Context, id string, page, pageSize int) (dto.TransitionHistoryResponse, error)
	AuditTrail(ctx context.Context, req dto.AuditListRequest) (dto.TransitionHistoryResponse, error)
	PointsSummary(ctx context.Context, studentID string) (dto.PointsSummaryResponse, error)
}

type entityService struct {
	repo      repository.WorkflowEntityRepository
	audit     AuditRecorder
	policy    *workflow.Policy
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEntityService builds the entity service. cache may be nil.
func NewEntityService(repo repository.WorkflowEntityRepository, audit AuditRecorder, policy *workflow.Policy, validate *validator.Validate, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) EntityService {
	if policy == nil {
		policy = workflow.DefaultPolicy()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &entityService{
		repo:      repo,
		audit:     audit,
		policy:    policy,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		cache:     cache,
		cacheTTL:  ttl,
		logger:    logger.With().Str("component", "entity_service").Logger(),
		now:       time.Now,
	}
}

func (s *entityService) CreateClaim(ctx context.Context, actor workflow.Actor, payload dto.CreateClaimRequest) (dto.EntityResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EntityResponse{}, err
	}

	category, err := s.load(ctx, strings.TrimSpace(payload.CategoryID))
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return dto.EntityResponse{}, workflow.ErrInvalidPayload.WithMessagef("category %s does not exist", payload.CategoryID)
		}
		return dto.EntityResponse{}, err
	}
	if category.Type != workflow.EntityCategory || category.State != workflow.StateActive {
		return dto.EntityResponse{}, workflow.ErrInvalidPayload.WithMessagef("category %s is not active", payload.CategoryID)
	}

	maxPoints, err := workflow.WholeNumber(category.Payload[workflow.PayloadMaxPoints])
	if err != nil {
		return dto.EntityResponse{}, fmt.Errorf("category %s max points: %w", category.ID, err)
	}
	if payload.Points > maxPoints {
		return dto.EntityResponse{}, workflow.ErrInvalidPayload.WithMessagef("points %d exceed category maximum %d", payload.Points, maxPoints)
	}

	signoff, ok := category.Payload[workflow.PayloadRequiresProctorSignoff].(bool)
	if !ok {
		signoff = true
	}

	fields := map[string]any{
		"category_id":                          category.ID,
		"category_name":                        category.Payload["name"],
		workflow.PayloadPoints:                 payload.Points,
		workflow.PayloadMaxPoints:              maxPoints,
		workflow.PayloadRequiresProctorSignoff: signoff,
		"semester":                             payload.Semester,
	}
	if eventID := strings.TrimSpace(payload.EventID); eventID != "" {
		fields["event_id"] = eventID
	}
	if description := s.clean(payload.Description); description != "" {
		fields["description"] = description
	}

	return s.create(ctx, actor, workflow.EntityActivityClaim, fields)
}

func (s *entityService) CreateDocument(ctx context.Context, actor workflow.Actor, payload dto.CreateDocumentRequest) (dto.EntityResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EntityResponse{}, err
	}

	fields := map[string]any{
		"title":    s.clean(payload.Title),
		"file_url": strings.TrimSpace(payload.FileURL),
	}

	if claimID := strings.TrimSpace(payload.ClaimID); claimID != "" {
		claim, err := s.load(ctx, claimID)
		if err != nil {
			if errors.Is(err, workflow.ErrNotFound) {
				return dto.EntityResponse{}, workflow.ErrInvalidPayload.WithMessagef("claim %s does not exist", claimID)
			}
			return dto.EntityResponse{}, err
		}
		if claim.Type != workflow.EntityActivityClaim || claim.OwnerRef != actor.ID {
			return dto.EntityResponse{}, workflow.ErrForbidden.WithMessagef("claim %s does not belong to caller", claimID)
		}
		fields["claim_id"] = claimID
	}
	if eventID := strings.TrimSpace(payload.EventID); eventID != "" {
		fields["event_id"] = eventID
	}
	if description := s.clean(payload.Description); description != "" {
		fields["description"] = description
	}

	return s.create(ctx, actor, workflow.EntityDocument, fields)
}

func (s *entityService) CreateEvent(ctx context.Context, actor workflow.Actor, payload dto.CreateEventRequest) (dto.EntityResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EntityResponse{}, err
	}

	fields := map[string]any{
		"title":       s.clean(payload.Title),
		"venue":       s.clean(payload.Venue),
		"start_at":    payload.StartAt.UTC().Format(time.RFC3339),
		"end_at":      payload.EndAt.UTC().Format(time.RFC3339),
		"is_external": payload.IsExternal,
	}
	if category := s.clean(payload.Category); category != "" {
		fields["category"] = category
	}
	if description := s.clean(payload.Description); description != "" {
		fields["description"] = description
	}
	if payload.DeptID > 0 {
		fields["dept_id"] = payload.DeptID
	}

	return s.create(ctx, actor, workflow.EntityEvent, fields)
}

func (s *entityService) CreateCategory(ctx context.Context, actor workflow.Actor, payload dto.CreateCategoryRequest) (dto.EntityResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EntityResponse{}, err
	}

	signoff := true
	if payload.RequiresProctorSignoff != nil {
		signoff = *payload.RequiresProctorSignoff
	}

	fields := map[string]any{
		"name":                                 s.clean(payload.Name),
		workflow.PayloadMaxPoints:              payload.MaxPoints,
		workflow.PayloadRequiresProctorSignoff: signoff,
	}

	return s.create(ctx, actor, workflow.EntityCategory, fields)
}

func (s *entityService) create(ctx context.Context, actor workflow.Actor, entityType workflow.EntityType, fields map[string]any) (dto.EntityResponse, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return dto.EntityResponse{}, workflow.ErrForbidden.WithMessagef("caller identity is required")
	}

	now := s.now().UTC()
	snapshot := workflow.Snapshot{
		ID:        uuid.NewString(),
		Type:      entityType,
		OwnerRef:  actor.ID,
		State:     workflow.StatePending,
		Version:   1,
		Payload:   fields,
		CreatedAt: now,
		UpdatedAt: now,
	}

	row := modelFromSnapshot(snapshot)
	row.CreatedBy = actor.ID
	if err := s.repo.Create(ctx, &row); err != nil {
		s.logger.Error().Err(err).Str("entity_type", string(entityType)).Msg("failed to create workflow entity")
		return dto.EntityResponse{}, err
	}

	if entityType == workflow.EntityActivityClaim {
		s.invalidateSummary(ctx, actor.ID)
	}

	s.logger.Info().
		Str("entity_id", row.ID).
		Str("entity_type", row.EntityType).
		Str("owner_ref", row.OwnerRef).
		Msg("workflow entity created")

	created := snapshotFromModel(row)
	response := dto.NewEntityResponse(created)
	response.Available = s.policy.AvailableFor(created, actor.Role)
	return response, nil
}

func (s *entityService) Get(ctx context.Context, actor workflow.Actor, id string) (dto.EntityResponse, error) {
	snapshot, err := s.load(ctx, strings.TrimSpace(id))
	if err != nil {
		return dto.EntityResponse{}, err
	}

	response := dto.NewEntityResponse(snapshot)
	response.Available = s.policy.AvailableFor(snapshot, actor.Role)
	return response, nil
}

func (s *entityService) List(ctx context.Context, req dto.EntityListRequest) (dto.EntityListResponse, error) {
	page := maxInt(req.Page, 1)
	pageSize := clampPageSize(req.PageSize)

	filter := repository.WorkflowEntityFilter{
		Page:       page,
		PageSize:   pageSize,
		EntityType: strings.ToLower(strings.TrimSpace(req.Type)),
		State:      strings.ToLower(strings.TrimSpace(req.State)),
		OwnerRef:   strings.TrimSpace(req.Owner),
	}

	if filter.EntityType != "" && !workflow.EntityType(filter.EntityType).Valid() {
		return dto.EntityListResponse{}, workflow.ErrInvalidPayload.WithMessagef("unknown entity type %q", req.Type)
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.EntityListResponse{}, err
	}

	items := make([]dto.EntityResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.NewEntityResponse(snapshotFromModel(row)))
	}

	return dto.EntityListResponse{Items: items, Pagination: paginate(page, pageSize, total)}, nil
}

func (s *entityService) History(ctx context.Context, id string, page, pageSize int) (dto.TransitionHistoryResponse, error) {
	snapshot, err := s.load(ctx, strings.TrimSpace(id))
	if err != nil {
		return dto.TransitionHistoryResponse{}, err
	}

	page = maxInt(page, 1)
	pageSize = clampPageSize(pageSize)

	return s.auditPage(ctx, repository.TransitionRecordFilter{
		EntityID: snapshot.ID,
		Page:     page,
		PageSize: pageSize,
	})
}

// AuditTrail pages through every recorded transition attempt, newest first.
func (s *entityService) AuditTrail(ctx context.Context, req dto.AuditListRequest) (dto.TransitionHistoryResponse, error) {
	filter := repository.TransitionRecordFilter{
		Page:     maxInt(req.Page, 1),
		PageSize: clampPageSize(req.PageSize),
		EntityID: strings.TrimSpace(req.Entity),
		ActorID:  strings.TrimSpace(req.Actor),
	}

	if outcome := strings.ToLower(strings.TrimSpace(req.Outcome)); outcome != "" {
		switch workflow.Outcome(outcome) {
		case workflow.OutcomeApplied, workflow.OutcomeRejected:
			filter.Outcome = outcome
		default:
			return dto.TransitionHistoryResponse{}, workflow.ErrInvalidPayload.WithMessagef("unknown outcome %q", req.Outcome)
		}
	}

	if entityType := workflow.EntityType(strings.ToLower(strings.TrimSpace(req.Type))); entityType != "" {
		if !entityType.Valid() {
			return dto.TransitionHistoryResponse{}, workflow.ErrInvalidPayload.WithMessagef("unknown entity type %q", req.Type)
		}
		filter.EntityType = string(entityType)
	}

	return s.auditPage(ctx, filter)
}

func (s *entityService) auditPage(ctx context.Context, filter repository.TransitionRecordFilter) (dto.TransitionHistoryResponse, error) {
	records, total, err := s.audit.History(ctx, filter)
	if err != nil {
		return dto.TransitionHistoryResponse{}, err
	}

	items := make([]dto.TransitionRecordResponse, 0, len(records))
	for _, record := range records {
		items = append(items, dto.NewTransitionRecordResponse(record))
	}

	return dto.TransitionHistoryResponse{Items: items, Pagination: paginate(filter.Page, filter.PageSize, total)}, nil
}

func (s *entityService) PointsSummary(ctx context.Context, studentID string) (dto.PointsSummaryResponse, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return dto.PointsSummaryResponse{}, workflow.ErrInvalidPayload.WithMessagef("student id is required")
	}

	generation, cacheable := s.summaryGeneration(ctx, studentID)
	cacheKey := summaryCacheKey(studentID, generation)
	if cacheable {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			var response dto.PointsSummaryResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				response.CacheHit = true
				observability.SummaryCache().WithLabelValues("hit").Inc()
				return response, nil
			}
		case errors.Is(err, redis.Nil):
		default:
			observability.SummaryCache().WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Msg("failed to read points summary cache")
		}
	}

	rows, _, err := s.repo.List(ctx, repository.WorkflowEntityFilter{
		EntityType: string(workflow.EntityActivityClaim),
		OwnerRef:   studentID,
	})
	if err != nil {
		return dto.PointsSummaryResponse{}, err
	}

	response := dto.PointsSummaryResponse{StudentID: studentID, GeneratedAt: s.now().UTC()}
	for _, row := range rows {
		points, err := workflow.WholeNumber(row.Payload[workflow.PayloadPoints])
		if err != nil {
			s.logger.Warn().Err(err).Str("entity_id", row.ID).Msg("claim without numeric points")
			points = 0
		}
		switch workflow.State(row.State) {
		case workflow.StateApproved:
			response.ApprovedClaims++
			response.ApprovedPoints += points
		case workflow.StatePending, workflow.StateProctorVerified:
			response.PendingClaims++
			response.PendingPoints += points
		case workflow.StateRejected, workflow.StateProctorRejected:
			response.RejectedClaims++
		}
	}

	if cacheable {
		observability.SummaryCache().WithLabelValues("miss").Inc()
		s.storeSummary(ctx, cacheKey, response)
	}

	return response, nil
}

// summaryGeneration reads the owner's cache generation. A summary computed
// while a transition bumps the generation is stored under the old key, which
// is never read again.
func (s *entityService) summaryGeneration(ctx context.Context, studentID string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	generation, err := s.cache.Get(ctx, summaryGenerationKey(studentID)).Int64()
	switch {
	case err == nil:
		return generation, true
	case errors.Is(err, redis.Nil):
		return 0, true
	default:
		observability.SummaryCache().WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("student_id", studentID).Msg("failed to read points summary generation")
		return 0, false
	}
}

func (s *entityService) storeSummary(ctx context.Context, cacheKey string, response dto.PointsSummaryResponse) {
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store points summary cache")
	}
}

// TransitionApplied drops the cached summary of the claim's owner.
func (s *entityService) TransitionApplied(ctx context.Context, decision workflow.Decision) {
	if decision.Next.Type != workflow.EntityActivityClaim {
		return
	}
	s.invalidateSummary(ctx, decision.Next.OwnerRef)
}

func (s *entityService) invalidateSummary(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, summaryGenerationKey(studentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("student_id", studentID).Msg("failed to invalidate points summary cache")
	}
}

func (s *entityService) load(ctx context.Context, id string) (workflow.Snapshot, error) {
	if id == "" {
		return workflow.Snapshot{}, workflow.ErrNotFound.WithMessagef("entity id is required")
	}
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return workflow.Snapshot{}, workflow.ErrNotFound.WithMessagef("entity %q not found", id)
		}
		return workflow.Snapshot{}, err
	}
	return snapshotFromModel(row), nil
}

func (s *entityService) clean(value string) string {
	return cleanText(s.sanitizer, value)
}

func summaryCacheKey(studentID string, generation int64) string {
	return fmt.Sprintf("points:summary:v1:%s:%d", studentID, generation)
}

func summaryGenerationKey(studentID string) string {
	return fmt.Sprintf("points:summary:gen:%s", studentID)
}

func paginate(page, pageSize int, total int64) dto.PaginationMeta {
	pagination := dto.PaginationMeta{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
	}
	if pageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	} else {
		pagination.TotalPages = 1
	}
	return pagination
}

func clampPageSize(size int) int {
	if size <= 0 {
		return 20
	}
	if size > 100 {
		return 100
	}
	return size
}

package dto

import "time"

// CreateClaimRequest is submitted by a student claiming activity points.
type CreateClaimRequest struct {
	CategoryID  string `json:"category_id" validate:"required,max=36"`
	EventID     string `json:"event_id" validate:"omitempty,max=36"`
	Points      int64  `json:"points" validate:"gte=0"`
	Semester    int    `json:"semester" validate:"required,min=1,max=12"`
	Description string `json:"description" validate:"max=2000"`
}

// CreateDocumentRequest registers a supporting document reference.
type CreateDocumentRequest struct {
	ClaimID     string `json:"claim_id" validate:"omitempty,max=36"`
	EventID     string `json:"event_id" validate:"omitempty,max=36"`
	Title       string `json:"title" validate:"required,max=200"`
	FileURL     string `json:"file_url" validate:"required,url,max=512"`
	Description string `json:"description" validate:"max=2000"`
}

// CreateEventRequest proposes an event for HOD approval.
type CreateEventRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=4000"`
	Category    string    `json:"category" validate:"omitempty,max=100"`
	Venue       string    `json:"venue" validate:"required,max=200"`
	StartAt     time.Time `json:"start_at" validate:"required"`
	EndAt       time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
	DeptID      uint      `json:"dept_id"`
	IsExternal  bool      `json:"is_external"`
}

// CreateCategoryRequest proposes an activity category.
type CreateCategoryRequest struct {
	Name                   string `json:"name" validate:"required,max=100"`
	MaxPoints              int64  `json:"max_points" validate:"required,gt=0,lte=1000"`
	RequiresProctorSignoff *bool  `json:"requires_proctor_signoff"`
}

// EntityListRequest defines filters for listing workflow entities.
type EntityListRequest struct {
	Page     int
	PageSize int
	Type     string
	State    string
	Owner    string
}

// AuditListRequest defines filters for browsing the transition audit trail.
type AuditListRequest struct {
	Page     int
	PageSize int
	Actor    string
	Outcome  string
	Entity   string
	Type     string
}

// EntityListResponse wraps a paginated entity listing.
type EntityListResponse struct {
	Items      []EntityResponse `json:"items"`
	Pagination PaginationMeta   `json:"pagination"`
}

// PointsSummaryResponse aggregates a student's activity claims.
type PointsSummaryResponse struct {
	StudentID      string    `json:"student_id"`
	ApprovedPoints int64     `json:"approved_points"`
	PendingPoints  int64     `json:"pending_points"`
	ApprovedClaims int       `json:"approved_claims"`
	PendingClaims  int       `json:"pending_claims"`
	RejectedClaims int       `json:"rejected_claims"`
	GeneratedAt    time.Time `json:"generated_at"`
	CacheHit       bool      `json:"cache_hit"`
}

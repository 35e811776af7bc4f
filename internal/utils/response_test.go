package utils_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-points-api/internal/dto"
	"github.com/noah-isme/activity-points-api/internal/utils"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

func serve(t *testing.T, handler fiber.Handler) (int, envelope) {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestOKCarriesPagination(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		items := []dto.TransitionRecordResponse{{EntityID: "doc-1", Action: "reject", Outcome: "applied", Version: 2}}
		return utils.OK(c, items, "", dto.PaginationMeta{Page: 2, PageSize: 1, TotalItems: 3, TotalPages: 3})
	})

	require.Equal(t, fiber.StatusOK, status)
	require.True(t, payload.Success)
	require.Equal(t, "success", payload.Message)
	require.Empty(t, payload.Details)

	var items []dto.TransitionRecordResponse
	require.NoError(t, json.Unmarshal(payload.Data, &items))
	require.Len(t, items, 1)
	require.Equal(t, "reject", items[0].Action)

	var meta dto.PaginationMeta
	require.NoError(t, json.Unmarshal(payload.Meta, &meta))
	require.Equal(t, 2, meta.Page)
	require.Equal(t, 3, meta.TotalPages)
}

func TestSendSuccessWithStatusOmitsMeta(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "claim submitted", dto.EntityResponse{ID: "claim-1", State: "pending", Version: 1})
	})

	require.Equal(t, fiber.StatusCreated, status)
	require.Equal(t, "claim submitted", payload.Message)
	require.Empty(t, payload.Meta)

	var entity dto.EntityResponse
	require.NoError(t, json.Unmarshal(payload.Data, &entity))
	require.Equal(t, int64(1), entity.Version)
}

func TestFailCarriesWorkflowError(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusConflict, "", dto.WorkflowErrorResponse{
			Kind:      string(workflow.KindAlreadyFinalized),
			Message:   "document is already rejected",
			Available: []workflow.Option{{Action: workflow.ActionOverrideVerify, To: workflow.StateApproved}},
			Entity:    &dto.EntityResponse{ID: "doc-1", State: "rejected", Version: 2},
		})
	})

	require.Equal(t, fiber.StatusConflict, status)
	require.False(t, payload.Success)
	require.Equal(t, "error", payload.Message)
	require.Empty(t, payload.Data)

	var details dto.WorkflowErrorResponse
	require.NoError(t, json.Unmarshal(payload.Details, &details))
	require.Equal(t, "already_finalized", details.Kind)
	require.Len(t, details.Available, 1)
	require.Equal(t, workflow.ActionOverrideVerify, details.Available[0].Action)
	require.NotNil(t, details.Entity)
	require.Equal(t, int64(2), details.Entity.Version)
}

func TestSendErrorOmitsDetails(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	})

	require.Equal(t, fiber.StatusForbidden, status)
	require.False(t, payload.Success)
	require.Equal(t, "insufficient permissions", payload.Message)
	require.Empty(t, payload.Details)
}

package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-points-api/internal/dto"
)

var adminCaller = caller{id: "admin-1", role: "admin"}

func TestAuditTrailForAdmins(t *testing.T) {
	app := setupWorkflowApp(t)

	doc := create(t, app, studentCaller, "/api/v1/documents", fiber.Map{"title": "Certificate", "file_url": "https://files.example.com/c.pdf"})
	status, _, _ := transition(t, app, proctorCaller, doc.ID, "reject", map[string]interface{}{"reason": "<b>Q&A</b> sheet missing"})
	require.Equal(t, fiber.StatusOK, status)
	status, _, _ = transition(t, app, hodCaller, doc.ID, "verify", nil)
	require.Equal(t, fiber.StatusConflict, status)
	status, _, _ = transition(t, app, hodCaller, doc.ID, "override_verify", nil)
	require.Equal(t, fiber.StatusOK, status)

	status, env, raw := call(t, app, adminCaller, http.MethodGet, "/api/v1/audit?entity="+doc.ID, nil)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	var records []dto.TransitionRecordResponse
	decodeData(t, env, &records)
	require.Len(t, records, 3)
	require.Equal(t, "override_verify", records[0].Action)
	require.Equal(t, "reject", records[2].Action)
	require.Equal(t, "Q&A sheet missing", records[2].Reason)

	status, env, raw = call(t, app, adminCaller, http.MethodGet, "/api/v1/audit?outcome=rejected&type=document", nil)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	decodeData(t, env, &records)
	require.Len(t, records, 1)
	require.Equal(t, "hod-1", records[0].ActorID)
	require.Equal(t, "already_finalized", records[0].Reason)

	status, env, raw = call(t, app, adminCaller, http.MethodGet, "/api/v1/audit?actor=hod-1&page=2&page_size=1", nil)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	decodeData(t, env, &records)
	require.Len(t, records, 1)
	require.Equal(t, "verify", records[0].Action)
	var meta dto.PaginationMeta
	require.NoError(t, json.Unmarshal(env.Meta, &meta))
	require.Equal(t, 2, meta.Page)
	require.Equal(t, int64(2), meta.TotalItems)
	require.Equal(t, 2, meta.TotalPages)
}

func TestAuditTrailRejectsBadFilters(t *testing.T) {
	app := setupWorkflowApp(t)

	status, env, _ := call(t, app, adminCaller, http.MethodGet, "/api/v1/audit?outcome=pending", nil)
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	require.Equal(t, "invalid_payload", decodeDetails(t, env).Kind)

	status, _, _ = call(t, app, adminCaller, http.MethodGet, "/api/v1/audit?type=badge", nil)
	require.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _, _ = call(t, app, adminCaller, http.MethodGet, "/api/v1/audit?page=x", nil)
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestAuditTrailIsAdminOnly(t *testing.T) {
	app := setupWorkflowApp(t)

	for _, who := range []caller{studentCaller, proctorCaller, hodCaller} {
		status, _, _ := call(t, app, who, http.MethodGet, "/api/v1/audit", nil)
		require.Equal(t, fiber.StatusForbidden, status, who.role)
	}
}

package router_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-points-api/internal/config"
	"github.com/noah-isme/activity-points-api/internal/handler"
	"github.com/noah-isme/activity-points-api/internal/router"
	"github.com/noah-isme/activity-points-api/internal/service"
)

func setupRouter(t *testing.T) *fiber.App {
	t.Helper()

	cfg := config.Config{
		AppName:             "Activity Points API",
		AppEnv:              "test",
		AuthMode:            "header",
		TransitionRateLimit: 5,
	}
	logger := zerolog.Nop()
	workflowService := service.NewWorkflowService(nil, nil, nil, nil, nil, logger)

	app := fiber.New()
	router.Register(app, cfg, router.Dependencies{
		WorkflowHandler: handler.NewWorkflowHandler(workflowService, validator.New(), logger),
	})
	return app
}

func TestHealthIsPublic(t *testing.T) {
	app := setupRouter(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Activity Points API", resp.Header.Get("X-Application"))
}

func TestMetricsExposed(t *testing.T) {
	app := setupRouter(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWorkflowRoutesNeedIdentity(t *testing.T) {
	app := setupRouter(t)

	req := httptest.NewRequest("POST", "/api/v1/entities/abc/transitions", strings.NewReader(`{"action":"verify"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/v1/workflow/policy?type=event", nil)
	req.Header.Set("X-User-ID", "hod-1")
	req.Header.Set("X-User-Role", "hod")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data struct {
			Edges []json.RawMessage `json:"edges"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Len(t, payload.Data.Edges, 2)
}

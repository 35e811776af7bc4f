package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-points-api/internal/config"
	"github.com/noah-isme/activity-points-api/internal/handler"
)

type healthEnvelope struct {
	Success bool                   `json:"success"`
	Data    handler.HealthResponse `json:"data"`
	Details handler.HealthResponse `json:"details"`
}

func performHealth(t *testing.T, probes map[string]handler.Probe) (int, healthEnvelope) {
	t.Helper()

	cfg := config.Config{AppName: "Activity Points API", AppEnv: "test"}
	app := fiber.New()
	app.Get("/api/v1/health", handler.HealthCheck(cfg, probes))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload healthEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestHealthCheck(t *testing.T) {
	status, payload := performHealth(t, nil)

	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, payload.Success)
	assert.Equal(t, "ok", payload.Data.Status)
	assert.Equal(t, "Activity Points API", payload.Data.Service)
	assert.Equal(t, "test", payload.Data.Environment)
	assert.WithinDuration(t, time.Now().UTC(), payload.Data.Timestamp, 2*time.Second)
}

func TestHealthCheckDegraded(t *testing.T) {
	status, payload := performHealth(t, map[string]handler.Probe{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.False(t, payload.Success)
	assert.Equal(t, "degraded", payload.Details.Status)
	assert.Equal(t, "ok", payload.Details.Checks["database"])
	assert.Equal(t, "connection refused", payload.Details.Checks["redis"])
}

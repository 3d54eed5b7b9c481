package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/chirp_analysis/internal/model/dto"
	"github.com/qs3c/chirp_analysis/internal/pkg/queue"
	"github.com/qs3c/chirp_analysis/internal/service"
	"github.com/qs3c/chirp_analysis/internal/testutil"
)

func TestHealthHandler_OK(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := queue.NewQueue(client, "analysis_health_handler_test", queue.Options{})
	handler := NewHealthHandler(service.NewHealthService(db, client, q))

	router := gin.New()
	router.GET("/health", handler.Health)

	w := performRequest(router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, service.HealthOK, resp.Status)
	require.NotNil(t, resp.Queue)
	assert.Zero(t, resp.Queue.Ready)
}

func TestHealthHandler_RedisDown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	handler := NewHealthHandler(service.NewHealthService(db, client, nil))

	router := gin.New()
	router.GET("/health", handler.Health)

	w := performRequest(router, "GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, service.HealthDown, resp.Redis)
	assert.Equal(t, service.HealthOK, resp.Database)
}

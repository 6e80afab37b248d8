package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"docxingest/internal/events"
	"docxingest/internal/handler"
	"docxingest/internal/ledger"
	"docxingest/internal/router"
	"docxingest/internal/service"
	"docxingest/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func setup() *gin.Engine {
	authSvc := new(mocks.MockAuthService)
	authSvc.On("ValidateToken", "good").Return(&service.Claims{Operator: "oncall"}, nil)
	pipeline := new(mocks.MockPipelineService)
	worker := service.NewPollWorker(pipeline, nil, service.PollConfig{})

	return router.Setup(authSvc, router.Handlers{
		Auth:   handler.NewAuthHandler(authSvc),
		Health: handler.NewHealthHandler(okPinger{}),
		Runs:   handler.NewRunHandler(pipeline, worker),
		Events: handler.NewEventHandler(events.NewMemorySink(10)),
		Ledger: handler.NewLedgerHandler(ledger.New(ledger.NewMemoryStore())),
	}, nil)
}

func TestRouter_PublicRoutes(t *testing.T) {
	r := setup()
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, http.NoBody)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	r := setup()
	for _, path := range []string{"/api/v1/events", "/api/v1/runs/latest"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, http.NoBody)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestRouter_EventsWithToken(t *testing.T) {
	r := setup()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/events", http.NoBody)
	req.Header.Set("Authorization", "Bearer good")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docxingest/internal/domain"
	"docxingest/internal/events"
	"docxingest/internal/handler"
	"docxingest/internal/ledger"
	"docxingest/internal/service"
	"docxingest/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.APIResponse {
	t.Helper()
	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type stubTrigger struct{ queued bool }

func (s *stubTrigger) Trigger() bool { return s.queued }

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestAuthHandler_Token_Success(t *testing.T) {
	mockAuth := new(mocks.MockAuthService)
	h := handler.NewAuthHandler(mockAuth)

	input := service.TokenInput{OperatorKey: "0123456789abcdef0123", Operator: "oncall"}
	mockAuth.On("IssueToken", input).
		Return(&service.Token{AccessToken: "jwt", ExpiresAt: time.Now().Add(time.Hour)}, nil)

	body, _ := json.Marshal(map[string]string{"operator_key": input.OperatorKey, "operator": "oncall"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Token(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)
	mockAuth.AssertExpectations(t)
}

func TestAuthHandler_Token_InvalidKey(t *testing.T) {
	mockAuth := new(mocks.MockAuthService)
	h := handler.NewAuthHandler(mockAuth)
	mockAuth.On("IssueToken", mock.AnythingOfType("service.TokenInput")).Return(nil, domain.ErrInvalidCredentials)

	body, _ := json.Marshal(map[string]string{"operator_key": "wrong-key-but-long-enough"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Token(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, w).Error.Code)
}

func TestAuthHandler_Token_ShortKeyRejected(t *testing.T) {
	mockAuth := new(mocks.MockAuthService)
	h := handler.NewAuthHandler(mockAuth)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{"operator_key":"short"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Token(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockAuth.AssertNotCalled(t, "IssueToken", mock.Anything)
}

func TestRunHandler_Start_Queued(t *testing.T) {
	p := new(mocks.MockPipelineService)
	p.On("Running").Return(false)
	h := handler.NewRunHandler(p, &stubTrigger{queued: true})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/runs", http.NoBody)

	h.Start(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, decode(t, w).Success)
}

func TestRunHandler_Start_AlreadyRunning(t *testing.T) {
	p := new(mocks.MockPipelineService)
	p.On("Running").Return(true)
	h := handler.NewRunHandler(p, &stubTrigger{queued: true})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/runs", http.NoBody)

	h.Start(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RUN_IN_PROGRESS", decode(t, w).Error.Code)
}

func TestRunHandler_Start_AlreadyQueued(t *testing.T) {
	p := new(mocks.MockPipelineService)
	p.On("Running").Return(false)
	h := handler.NewRunHandler(p, &stubTrigger{queued: false})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/runs", http.NoBody)

	h.Start(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRunHandler_Latest(t *testing.T) {
	p := new(mocks.MockPipelineService)
	summary := &domain.BatchSummary{BatchID: uuid.New(), Committed: 3}
	p.On("Latest").Return(summary, nil)
	h := handler.NewRunHandler(p, &stubTrigger{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/runs/latest", http.NoBody)

	h.Latest(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), summary.BatchID.String())
}

func TestRunHandler_Latest_NoRunYet(t *testing.T) {
	p := new(mocks.MockPipelineService)
	p.On("Latest").Return(nil, domain.ErrNoRunYet)
	h := handler.NewRunHandler(p, &stubTrigger{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/runs/latest", http.NoBody)

	h.Latest(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_RUN_YET", decode(t, w).Error.Code)
}

func TestEventHandler_List_FiltersByBatch(t *testing.T) {
	sink := events.NewMemorySink(10)
	batch := uuid.New()
	for _, id := range []uuid.UUID{batch, uuid.New(), batch} {
		require.NoError(t, sink.Emit(context.Background(), domain.PipelineEvent{
			ID: uuid.New(), BatchID: id, Stage: domain.StageDiscovered, Status: domain.EventStarted, Timestamp: time.Now(),
		}))
	}
	h := handler.NewEventHandler(sink)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/events?batch_id="+batch.String(), http.NoBody)

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.Total)
}

func TestEventHandler_List_BadParams(t *testing.T) {
	h := handler.NewEventHandler(events.NewMemorySink(10))
	for _, q := range []string{"batch_id=nope", "since=yesterday", "limit=0", "limit=x"} {
		t.Run(q, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/events?"+q, http.NoBody)

			h.List(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestLedgerHandler_Get(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	hash := domain.ContentHash([]byte("invoice"))
	require.NoError(t, l.Record(context.Background(), hash, "archive/invoices/b/abc"))
	h := handler.NewLedgerHandler(l)

	tests := []struct {
		name   string
		hash   string
		status int
	}{
		{"committed", hash, http.StatusOK},
		{"unknown", domain.ContentHash([]byte("other")), http.StatusNotFound},
		{"malformed", "ABC", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Params = gin.Params{{Key: "hash", Value: tt.hash}}
			c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/ledger/"+tt.hash, http.NoBody)

			h.Get(c)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"ready", nil, http.StatusOK},
		{"ledger down", errors.New("dial tcp: refused"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(stubPinger{err: tt.err})
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest(http.MethodGet, "/readyz", http.NoBody)

			h.Readiness(c)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

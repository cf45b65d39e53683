package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"reconmc/server/internal/agentregistry"
	"reconmc/server/internal/api"
	"reconmc/server/internal/db"
	"reconmc/server/internal/queue"
	"reconmc/server/internal/repositories"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require.NoError(t, db.InitEncryption(make([]byte, 32)))

	gdb, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      "file:" + t.Name() + "?mode=memory&cache=shared",
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	return gdb
}

func newAgentFacingHandler(t *testing.T) (*api.AgentFacingHandler, *gorm.DB) {
	gdb := newTestDB(t)
	agentRepo := repositories.NewAgentRepository(gdb)
	registry := agentregistry.New(agentRepo, nil, zap.NewNop())

	queueRepo := repositories.NewScanQueueRepository(gdb)
	serverRepo := repositories.NewServerRepository(gdb)
	taskLogs := repositories.NewTaskLogRepository(gdb)
	accounts := repositories.NewAccountRepository(gdb)
	svc := queue.New(gdb, nil, queueRepo, serverRepo, taskLogs, accounts, zap.NewNop())

	return api.NewAgentFacingHandler(registry, svc, zap.NewNop()), gdb
}

func doRequest(t *testing.T, handler http.HandlerFunc, method, target string, body any, urlParams map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	if len(urlParams) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range urlParams {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestAgentFacing_RegisterRejectsMalformedID(t *testing.T) {
	h, _ := newAgentFacingHandler(t)

	rec := doRequest(t, h.Register, http.MethodPost, "/api/agents/register", map[string]string{
		"agentId": "bad id with spaces",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentFacing_RegisterSucceeds(t *testing.T) {
	h, _ := newAgentFacingHandler(t)

	rec := doRequest(t, h.Register, http.MethodPost, "/api/agents/register", map[string]string{
		"agentId": "agent-1",
		"name":    "scout-1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "agent-1", body["data"]["id"])
}

func TestAgentFacing_HeartbeatUnknownAgentIsNotFound(t *testing.T) {
	h, _ := newAgentFacingHandler(t)

	rec := doRequest(t, h.Heartbeat, http.MethodPost, "/api/agents/heartbeat", map[string]string{
		"agentId": "never-registered",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentFacing_ClaimReturnsNoContentWhenEmpty(t *testing.T) {
	h, _ := newAgentFacingHandler(t)

	rec := doRequest(t, h.Claim, http.MethodPost, "/api/queue/claim", map[string]string{
		"agentId": "agent-1",
	}, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAgentFacing_ClaimCompleteRoundTrip(t *testing.T) {
	h, gdb := newAgentFacingHandler(t)
	ctx := context.Background()

	require.NoError(t, gdb.Create(&db.Proxy{Host: "1.1.1.1", Port: 1080, MaxConcurrent: 1, IsActive: true}).Error)
	require.NoError(t, gdb.Create(&db.Account{Type: "microsoft", Username: "a", MaxConcurrent: 1, IsActive: true, IsValid: true}).Error)

	queueRepo := repositories.NewScanQueueRepository(gdb)
	row := &db.ScanQueue{ServerAddress: "mc.example.com", ResolvedIP: "203.0.113.10", Port: 25565, Status: "pending"}
	require.NoError(t, queueRepo.Create(ctx, row))

	claimRec := doRequest(t, h.Claim, http.MethodPost, "/api/queue/claim", map[string]string{"agentId": "agent-1"}, nil)
	require.Equal(t, http.StatusOK, claimRec.Code)

	var claimBody map[string]map[string]any
	require.NoError(t, json.Unmarshal(claimRec.Body.Bytes(), &claimBody))
	queueID, _ := claimBody["data"]["queueId"].(string)
	require.NotEmpty(t, queueID)

	completeRec := doRequest(t, h.Complete, http.MethodPost, "/api/queue/"+queueID+"/complete",
		map[string]any{"result": map[string]any{}}, map[string]string{"id": queueID})
	assert.Equal(t, http.StatusOK, completeRec.Code)
}

func TestAgentFacing_FailUnknownQueueRowIsNotFound(t *testing.T) {
	h, _ := newAgentFacingHandler(t)

	failRec := doRequest(t, h.Fail, http.MethodPost, "/api/queue/00000000-0000-0000-0000-000000000000/fail",
		map[string]string{"errorMessage": "boom"},
		map[string]string{"id": "00000000-0000-0000-0000-000000000000"})
	assert.Equal(t, http.StatusNotFound, failRec.Code)
}

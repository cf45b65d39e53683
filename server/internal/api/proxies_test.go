package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reconmc/server/internal/api"
	"reconmc/server/internal/repositories"
)

func newProxyRouter(t *testing.T, apiKey string, disableAuth bool) http.Handler {
	gdb := newTestDB(t)
	repo := repositories.NewProxyRepository(gdb)
	h := api.NewProxyHandler(repo, zap.NewNop())

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(api.RequireAPIKey(apiKey, disableAuth))
		r.Get("/api/proxies", h.List)
		r.Post("/api/proxies", h.Create)
		r.Get("/api/proxies/{id}", h.GetByID)
		r.Patch("/api/proxies/{id}", h.Update)
		r.Delete("/api/proxies/{id}", h.Delete)
	})
	return r
}

func TestProxyAPI_RequireAPIKeyRejectsMissingKey(t *testing.T) {
	r := newProxyRouter(t, "secret", false)

	req := httptest.NewRequest(http.MethodGet, "/api/proxies", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProxyAPI_RequireAPIKeyAcceptsCorrectKey(t *testing.T) {
	r := newProxyRouter(t, "secret", false)

	req := httptest.NewRequest(http.MethodGet, "/api/proxies", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProxyAPI_DisableAuthBypassesKeyCheck(t *testing.T) {
	r := newProxyRouter(t, "secret", true)

	req := httptest.NewRequest(http.MethodGet, "/api/proxies", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProxyAPI_CreateGetUpdateDelete(t *testing.T) {
	r := newProxyRouter(t, "secret", true)

	createBody, err := json.Marshal(map[string]any{
		"host":          "10.0.0.5",
		"port":          1080,
		"protocol":      "socks5",
		"maxConcurrent": 2,
	})
	require.NoError(t, err)

	createReq := httptest.NewRequest(http.MethodPost, "/api/proxies", bytes.NewReader(createBody))
	createReq.Header.Set("Content-Type", "application/json")
	createRec := httptest.NewRecorder()
	r.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created map[string]map[string]any
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	id, _ := created["data"]["id"].(string)
	require.NotEmpty(t, id)

	getReq := httptest.NewRequest(http.MethodGet, "/api/proxies/"+id, nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)

	updateBody, err := json.Marshal(map[string]any{"maxConcurrent": 9})
	require.NoError(t, err)
	updateReq := httptest.NewRequest(http.MethodPatch, "/api/proxies/"+id, bytes.NewReader(updateBody))
	updateReq.Header.Set("Content-Type", "application/json")
	updateRec := httptest.NewRecorder()
	r.ServeHTTP(updateRec, updateReq)
	require.Equal(t, http.StatusOK, updateRec.Code)

	var updated map[string]map[string]any
	require.NoError(t, json.Unmarshal(updateRec.Body.Bytes(), &updated))
	assert.EqualValues(t, 9, updated["data"]["maxConcurrent"])

	deleteReq := httptest.NewRequest(http.MethodDelete, "/api/proxies/"+id, nil)
	deleteRec := httptest.NewRecorder()
	r.ServeHTTP(deleteRec, deleteReq)
	assert.Equal(t, http.StatusNoContent, deleteRec.Code)

	getAfterDeleteReq := httptest.NewRequest(http.MethodGet, "/api/proxies/"+id, nil)
	getAfterDeleteRec := httptest.NewRecorder()
	r.ServeHTTP(getAfterDeleteRec, getAfterDeleteReq)
	assert.Equal(t, http.StatusNotFound, getAfterDeleteRec.Code)
}

func TestProxyAPI_CreateRejectsInvalidProtocol(t *testing.T) {
	r := newProxyRouter(t, "secret", true)

	body, err := json.Marshal(map[string]any{"host": "10.0.0.5", "port": 1080, "protocol": "http"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/proxies", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

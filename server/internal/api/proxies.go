package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"reconmc/server/internal/db"
	"reconmc/server/internal/repositories"
)

// ProxyHandler groups the operator-facing proxy CRUD endpoints.
type ProxyHandler struct {
	repo   repositories.ProxyRepository
	logger *zap.Logger
}

// NewProxyHandler creates a new ProxyHandler.
func NewProxyHandler(repo repositories.ProxyRepository, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{repo: repo, logger: logger.Named("proxy_handler")}
}

type proxyResponse struct {
	ID            string `json:"id"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username,omitempty"`
	Protocol      string `json:"protocol"`
	CurrentUsage  int    `json:"currentUsage"`
	MaxConcurrent int    `json:"maxConcurrent"`
	IsActive      bool   `json:"isActive"`
}

func proxyToResponse(p *db.Proxy) proxyResponse {
	return proxyResponse{
		ID:            p.ID.String(),
		Host:          p.Host,
		Port:          p.Port,
		Username:      p.Username,
		Protocol:      p.Protocol,
		CurrentUsage:  p.CurrentUsage,
		MaxConcurrent: p.MaxConcurrent,
		IsActive:      p.IsActive,
	}
}

// List handles GET /api/proxies.
func (h *ProxyHandler) List(w http.ResponseWriter, r *http.Request) {
	proxies, total, err := h.repo.List(r.Context(), paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list proxies", zap.Error(err))
		ErrInternal(w)
		return
	}
	items := make([]proxyResponse, len(proxies))
	for i := range proxies {
		items[i] = proxyToResponse(&proxies[i])
	}
	Ok(w, map[string]any{"items": items, "total": total})
}

type createProxyRequest struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	Protocol      string `json:"protocol"`
	MaxConcurrent int    `json:"maxConcurrent"`
}

// Create handles POST /api/proxies.
func (h *ProxyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProxyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Host == "" || req.Port <= 0 {
		ErrBadRequest(w, "host and port are required")
		return
	}
	if req.Protocol != "socks4" && req.Protocol != "socks5" {
		ErrBadRequest(w, "protocol must be socks4 or socks5")
		return
	}
	if req.MaxConcurrent <= 0 {
		req.MaxConcurrent = 1
	}

	proxy := &db.Proxy{
		Host:          req.Host,
		Port:          req.Port,
		Username:      req.Username,
		Password:      db.EncryptedString(req.Password),
		Protocol:      req.Protocol,
		MaxConcurrent: req.MaxConcurrent,
		IsActive:      true,
	}
	if err := h.repo.Create(r.Context(), proxy); err != nil {
		h.logger.Error("failed to create proxy", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, proxyToResponse(proxy))
}

// GetByID handles GET /api/proxies/{id}.
func (h *ProxyHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	proxy, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get proxy", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, proxyToResponse(proxy))
}

type updateProxyRequest struct {
	Username      *string `json:"username"`
	Password      *string `json:"password"`
	MaxConcurrent *int    `json:"maxConcurrent"`
	IsActive      *bool   `json:"isActive"`
}

// Update handles PATCH /api/proxies/{id}.
func (h *ProxyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateProxyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	proxy, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get proxy for update", zap.Error(err))
		ErrInternal(w)
		return
	}

	if req.Username != nil {
		proxy.Username = *req.Username
	}
	if req.Password != nil {
		proxy.Password = db.EncryptedString(*req.Password)
	}
	if req.MaxConcurrent != nil && *req.MaxConcurrent > 0 {
		proxy.MaxConcurrent = *req.MaxConcurrent
	}
	if req.IsActive != nil {
		proxy.IsActive = *req.IsActive
	}

	if err := h.repo.Update(r.Context(), proxy); err != nil {
		h.logger.Error("failed to update proxy", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, proxyToResponse(proxy))
}

// Delete handles DELETE /api/proxies/{id}.
func (h *ProxyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to delete proxy", zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

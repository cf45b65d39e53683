package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"reconmc/server/internal/db"
	"reconmc/server/internal/repositories"
	"reconmc/shared/types"
)

// ServerHandler groups the operator-facing read endpoints over discovered
// Minecraft servers. There is no create/update/delete here — rows are only
// ever written by queue.Service as scans complete.
type ServerHandler struct {
	repo   repositories.ServerRepository
	logger *zap.Logger
}

// NewServerHandler creates a new ServerHandler.
func NewServerHandler(repo repositories.ServerRepository, logger *zap.Logger) *ServerHandler {
	return &ServerHandler{repo: repo, logger: logger.Named("server_handler")}
}

type serverResponse struct {
	ID              string                     `json:"id"`
	ServerAddress   string                     `json:"serverAddress"`
	ResolvedIP      string                     `json:"resolvedIp"`
	Port            int                        `json:"port"`
	PrimaryHostname string                     `json:"primaryHostname"`
	Hostnames       []string                   `json:"hostnames"`
	FirstSeenAt     string                     `json:"firstSeenAt"`
	LastScannedAt   string                     `json:"lastScannedAt"`
	ScanCount       int64                      `json:"scanCount"`
	LatestResult    *types.ScanResult          `json:"latestResult,omitempty"`
	ScanHistory     []types.ScanHistoryEntry   `json:"scanHistory,omitempty"`
}

func serverToResponse(s *db.Server, includeHistory bool, logger *zap.Logger) serverResponse {
	resp := serverResponse{
		ID:              s.ID.String(),
		ServerAddress:   s.ServerAddress,
		ResolvedIP:      s.ResolvedIP,
		Port:            s.Port,
		PrimaryHostname: s.PrimaryHostname,
		FirstSeenAt:     s.FirstSeenAt.Format(http.TimeFormat),
		LastScannedAt:   s.LastScannedAt.Format(http.TimeFormat),
		ScanCount:       s.ScanCount,
	}

	if s.Hostnames != "" {
		var hostnames []string
		if err := json.Unmarshal([]byte(s.Hostnames), &hostnames); err != nil {
			logger.Warn("failed to decode hostnames", zap.String("server_id", s.ID.String()), zap.Error(err))
		} else {
			resp.Hostnames = hostnames
		}
	}

	if s.LatestResult != "" {
		var result types.ScanResult
		if err := json.Unmarshal([]byte(s.LatestResult), &result); err != nil {
			logger.Warn("failed to decode latest result", zap.String("server_id", s.ID.String()), zap.Error(err))
		} else {
			resp.LatestResult = &result
		}
	}

	if includeHistory && s.ScanHistory != "" {
		var history []types.ScanHistoryEntry
		if err := json.Unmarshal([]byte(s.ScanHistory), &history); err != nil {
			logger.Warn("failed to decode scan history", zap.String("server_id", s.ID.String()), zap.Error(err))
		} else {
			resp.ScanHistory = history
		}
	}

	return resp
}

// List handles GET /api/servers.
func (h *ServerHandler) List(w http.ResponseWriter, r *http.Request) {
	servers, total, err := h.repo.List(r.Context(), paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list servers", zap.Error(err))
		ErrInternal(w)
		return
	}
	items := make([]serverResponse, len(servers))
	for i := range servers {
		items[i] = serverToResponse(&servers[i], false, h.logger)
	}
	Ok(w, map[string]any{"items": items, "total": total})
}

// GetByID handles GET /api/servers/{id}, including full scan history.
func (h *ServerHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	server, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get server", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, serverToResponse(server, true, h.logger))
}

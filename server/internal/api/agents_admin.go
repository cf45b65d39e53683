package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"reconmc/server/internal/agentregistry"
	"reconmc/server/internal/repositories"
)

// AgentAdminHandler groups the operator-facing read endpoints over the agent
// fleet. Agents themselves never call these — they register/heartbeat
// through AgentFacingHandler.
type AgentAdminHandler struct {
	registry *agentregistry.Registry
	logger   *zap.Logger
}

// NewAgentAdminHandler creates a new AgentAdminHandler.
func NewAgentAdminHandler(registry *agentregistry.Registry, logger *zap.Logger) *AgentAdminHandler {
	return &AgentAdminHandler{registry: registry, logger: logger.Named("agent_admin")}
}

type agentResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	Online         bool    `json:"online"`
	CurrentQueueID *string `json:"currentQueueId,omitempty"`
	LastHeartbeat  string  `json:"lastHeartbeat"`
	RegisteredAt   string  `json:"registeredAt"`
}

func agentToResponse(v *agentregistry.View) agentResponse {
	resp := agentResponse{
		ID:            v.ID,
		Name:          v.Name,
		Status:        v.Status,
		Online:        v.Online,
		LastHeartbeat: v.LastHeartbeat.Format(http.TimeFormat),
		RegisteredAt:  v.RegisteredAt.Format(http.TimeFormat),
	}
	if v.CurrentQueueID != nil {
		id := v.CurrentQueueID.String()
		resp.CurrentQueueID = &id
	}
	return resp
}

// List handles GET /api/agents.
func (h *AgentAdminHandler) List(w http.ResponseWriter, r *http.Request) {
	views, total, err := h.registry.List(r.Context(), paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list agents", zap.Error(err))
		ErrInternal(w)
		return
	}
	items := make([]agentResponse, len(views))
	for i := range views {
		items[i] = agentToResponse(&views[i])
	}
	Ok(w, map[string]any{"items": items, "total": total})
}

// GetByID handles GET /api/agents/{id}.
func (h *AgentAdminHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chiURLParam(r, "id")
	if id == "" {
		ErrBadRequest(w, "id is required")
		return
	}
	view, err := h.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get agent", zap.String("agent_id", id), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, agentToResponse(view))
}

// Delete handles DELETE /api/agents/{id}, deregistering a decommissioned agent.
func (h *AgentAdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chiURLParam(r, "id")
	if id == "" {
		ErrBadRequest(w, "id is required")
		return
	}
	if err := h.registry.Deregister(r.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to delete agent", zap.String("agent_id", id), zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

package api

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reconmc/server/internal/agentregistry"
	"reconmc/server/internal/queue"
	"reconmc/server/internal/repositories"
	"reconmc/shared/types"
)

// agentIDPattern matches the shape a self-minted agent ID must take —
// enforced here rather than at the database layer since Agent.ID is a
// free-form string primary key with no other structural constraint.
var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// AgentFacingHandler groups the endpoints agents call against the
// coordinator: register, heartbeat, claim, complete, fail, and log
// submission. Unauthenticated by design — the surface is meant to run on a
// private network between coordinator and agents.
type AgentFacingHandler struct {
	registry *agentregistry.Registry
	queue    *queue.Service
	logger   *zap.Logger
}

// NewAgentFacingHandler creates a new AgentFacingHandler.
func NewAgentFacingHandler(registry *agentregistry.Registry, q *queue.Service, logger *zap.Logger) *AgentFacingHandler {
	return &AgentFacingHandler{registry: registry, queue: q, logger: logger.Named("agent_facing")}
}

// Register handles POST /api/agents/register.
func (h *AgentFacingHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !agentIDPattern.MatchString(req.AgentID) {
		ErrBadRequest(w, "agentId must match ^[A-Za-z0-9_-]{1,100}$")
		return
	}

	agent, err := h.registry.Register(r.Context(), req.AgentID, req.Name)
	if err != nil {
		h.logger.Error("failed to register agent", zap.String("agent_id", req.AgentID), zap.Error(err))
		ErrInternal(w)
		return
	}

	Ok(w, types.RegisterResponse{
		ID:            agent.ID,
		Status:        agent.Status,
		LastHeartbeat: agent.LastHeartbeat,
		RegisteredAt:  agent.RegisteredAt,
	})
}

// Heartbeat handles POST /api/agents/heartbeat.
func (h *AgentFacingHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req types.HeartbeatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		ErrBadRequest(w, "agentId is required")
		return
	}

	status := req.Status
	if status == "" {
		status = "idle"
	}

	var currentQueueID *uuid.UUID
	if req.CurrentQueueID != nil && *req.CurrentQueueID != "" {
		if parsed, err := uuid.Parse(*req.CurrentQueueID); err == nil {
			currentQueueID = &parsed
		}
	}

	if err := h.registry.Heartbeat(r.Context(), req.AgentID, status, currentQueueID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to record heartbeat", zap.String("agent_id", req.AgentID), zap.Error(err))
		ErrInternal(w)
		return
	}

	Ok(w, map[string]bool{"ok": true})
}

// Claim handles POST /api/queue/claim.
func (h *AgentFacingHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req types.ClaimRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		ErrBadRequest(w, "agentId is required")
		return
	}

	claimed, err := h.queue.Claim(r.Context(), req.AgentID)
	if err != nil {
		h.logger.Error("claim failed", zap.String("agent_id", req.AgentID), zap.Error(err))
		ErrInternal(w)
		return
	}
	if claimed == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	Ok(w, types.ClaimResponse{
		QueueID:       claimed.Row.ID.String(),
		ServerAddress: claimed.Row.ServerAddress,
		Port:          claimed.Row.Port,
		Proxy: types.ProxyRef{
			ID:       claimed.Proxy.ID.String(),
			Host:     claimed.Proxy.Host,
			Port:     claimed.Proxy.Port,
			Username: claimed.Proxy.Username,
			Password: string(claimed.Proxy.Password),
			Protocol: claimed.Proxy.Protocol,
		},
		Account: types.AccountRef{
			ID:           claimed.Account.ID.String(),
			Type:         claimed.Account.Type,
			Username:     claimed.Account.Username,
			AccessToken:  string(claimed.Account.AccessToken),
			RefreshToken: string(claimed.Account.RefreshToken),
		},
	})
}

// Complete handles POST /api/queue/{id}/complete.
func (h *AgentFacingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req types.CompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.queue.Complete(r.Context(), id, req.Result, req.AccessToken, req.RefreshToken); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("complete failed", zap.String("queue_id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, map[string]bool{"ok": true})
}

// Fail handles POST /api/queue/{id}/fail.
func (h *AgentFacingHandler) Fail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req types.FailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.queue.Fail(r.Context(), id, req.ErrorMessage); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("fail failed", zap.String("queue_id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, map[string]bool{"ok": true})
}

// Logs handles POST /api/tasks/{id}/logs.
func (h *AgentFacingHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req types.TaskLogsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.queue.AppendLogs(r.Context(), id, req.AgentID, req.Logs); err != nil {
		h.logger.Error("append logs failed", zap.String("queue_id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, map[string]any{"ok": true, "received": len(req.Logs)})
}

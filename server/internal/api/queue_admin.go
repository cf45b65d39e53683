package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"reconmc/server/internal/db"
	"reconmc/server/internal/queue"
	"reconmc/server/internal/repositories"
)

// QueueHandler groups the operator-facing endpoints for submitting scan
// targets and inspecting the queue. Claim/complete/fail belong to
// AgentFacingHandler — this handler never mutates a row's assignment.
type QueueHandler struct {
	service *queue.Service
	repo    repositories.ScanQueueRepository
	logs    repositories.TaskLogRepository
	logger  *zap.Logger
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(service *queue.Service, repo repositories.ScanQueueRepository, logs repositories.TaskLogRepository, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{service: service, repo: repo, logs: logs, logger: logger.Named("queue_handler")}
}

type scanQueueResponse struct {
	ID              string  `json:"id"`
	ServerAddress   string  `json:"serverAddress"`
	Hostname        string  `json:"hostname"`
	ResolvedIP      string  `json:"resolvedIp"`
	Port            int     `json:"port"`
	Status          string  `json:"status"`
	AssignedAgentID string  `json:"assignedAgentId,omitempty"`
	RetryCount      int     `json:"retryCount"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	StartedAt       *string `json:"startedAt,omitempty"`
	CompletedAt     *string `json:"completedAt,omitempty"`
}

func queueRowToResponse(q *db.ScanQueue) scanQueueResponse {
	resp := scanQueueResponse{
		ID:              q.ID.String(),
		ServerAddress:   q.ServerAddress,
		Hostname:        q.Hostname,
		ResolvedIP:      q.ResolvedIP,
		Port:            q.Port,
		Status:          q.Status,
		AssignedAgentID: q.AssignedAgentID,
		RetryCount:      q.RetryCount,
		ErrorMessage:    q.ErrorMessage,
	}
	if q.StartedAt != nil {
		s := q.StartedAt.Format(http.TimeFormat)
		resp.StartedAt = &s
	}
	if q.CompletedAt != nil {
		c := q.CompletedAt.Format(http.TimeFormat)
		resp.CompletedAt = &c
	}
	return resp
}

type enqueueRequest struct {
	ServerAddress string `json:"serverAddress"`
	Hostname      string `json:"hostname"`
	ResolvedIP    string `json:"resolvedIp"`
	Port          int    `json:"port"`
}

// Enqueue handles POST /api/queue, submitting a new scan target.
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ResolvedIP == "" || req.Port <= 0 {
		ErrBadRequest(w, "resolvedIp and port are required")
		return
	}
	if req.ServerAddress == "" {
		req.ServerAddress = req.ResolvedIP
	}

	row, err := h.service.Enqueue(r.Context(), queue.Target{
		ServerAddress: req.ServerAddress,
		Hostname:      req.Hostname,
		ResolvedIP:    req.ResolvedIP,
		Port:          req.Port,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			ErrConflict(w, "a pending or processing scan already exists for this target")
			return
		}
		h.logger.Error("failed to enqueue target", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, queueRowToResponse(row))
}

// List handles GET /api/queue, optionally filtered by ?status=.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := paginationOpts(r)
	status := r.URL.Query().Get("status")

	var (
		rows  []db.ScanQueue
		total int64
		err   error
	)
	if status != "" {
		rows, total, err = h.repo.ListByStatus(r.Context(), status, opts)
	} else {
		rows, total, err = h.repo.List(r.Context(), opts)
	}
	if err != nil {
		h.logger.Error("failed to list queue", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]scanQueueResponse, len(rows))
	for i := range rows {
		items[i] = queueRowToResponse(&rows[i])
	}
	Ok(w, map[string]any{"items": items, "total": total})
}

// GetByID handles GET /api/queue/{id}.
func (h *QueueHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	row, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get queue row", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, queueRowToResponse(row))
}

type taskLogResponse struct {
	AgentID   string `json:"agentId"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Logs handles GET /api/queue/{id}/logs.
func (h *QueueHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	logs, err := h.logs.ListByQueueID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list task logs", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]taskLogResponse, len(logs))
	for i, l := range logs {
		items[i] = taskLogResponse{
			AgentID:   l.AgentID,
			Level:     l.Level,
			Message:   l.Message,
			Timestamp: l.Timestamp.Format(http.TimeFormat),
		}
	}
	Ok(w, map[string]any{"items": items})
}

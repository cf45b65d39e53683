package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"reconmc/server/internal/agentregistry"
	"reconmc/server/internal/queue"
	"reconmc/server/internal/repositories"
)

// RouterConfig holds all dependencies needed to build the HTTP router. It is
// populated in main.go after all components are initialized and passed to
// NewRouter as a single struct to keep the constructor signature manageable
// as the number of dependencies grows.
type RouterConfig struct {
	Logger *zap.Logger

	Registry *agentregistry.Registry
	Queue    *queue.Service

	Proxies   repositories.ProxyRepository
	Accounts  repositories.AccountRepository
	Servers   repositories.ServerRepository
	ScanQueue repositories.ScanQueueRepository
	TaskLogs  repositories.TaskLogRepository

	// APIKey gates the operator-facing surface via the X-API-Key header.
	APIKey string
	// DisableAuth skips the X-API-Key check entirely — for local development.
	DisableAuth bool
}

// NewRouter builds and returns the fully configured Chi router.
//
// Two route groups exist: the agent-facing surface (/api/agents/register,
// /api/agents/heartbeat, /api/queue/claim, /api/queue/{id}/complete,
// /api/queue/{id}/fail, /api/tasks/{id}/logs) is unauthenticated by design,
// meant to run on a private network between coordinator and agents; the
// operator-facing CRUD surface (/api/proxies, /api/accounts, /api/agents,
// /api/servers, /api/queue) is protected by RequireAPIKey.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	// --- Initialize handlers ---
	agentFacing := NewAgentFacingHandler(cfg.Registry, cfg.Queue, cfg.Logger)
	proxyHandler := NewProxyHandler(cfg.Proxies, cfg.Logger)
	accountHandler := NewAccountHandler(cfg.Accounts, cfg.Logger)
	agentAdmin := NewAgentAdminHandler(cfg.Registry, cfg.Logger)
	serverHandler := NewServerHandler(cfg.Servers, cfg.Logger)
	queueHandler := NewQueueHandler(cfg.Queue, cfg.ScanQueue, cfg.TaskLogs, cfg.Logger)

	r.Route("/api", func(r chi.Router) {

		// --- Agent-facing routes (unauthenticated, trusted network) ---
		r.Group(func(r chi.Router) {
			r.Post("/agents/register", agentFacing.Register)
			r.Post("/agents/heartbeat", agentFacing.Heartbeat)
			r.Post("/queue/claim", agentFacing.Claim)
			r.Post("/queue/{id}/complete", agentFacing.Complete)
			r.Post("/queue/{id}/fail", agentFacing.Fail)
			r.Post("/tasks/{id}/logs", agentFacing.Logs)
		})

		// --- Operator-facing routes (X-API-Key required) ---
		r.Group(func(r chi.Router) {
			r.Use(RequireAPIKey(cfg.APIKey, cfg.DisableAuth))

			r.Get("/proxies", proxyHandler.List)
			r.Post("/proxies", proxyHandler.Create)
			r.Get("/proxies/{id}", proxyHandler.GetByID)
			r.Patch("/proxies/{id}", proxyHandler.Update)
			r.Delete("/proxies/{id}", proxyHandler.Delete)

			r.Get("/accounts", accountHandler.List)
			r.Post("/accounts", accountHandler.Create)
			r.Get("/accounts/{id}", accountHandler.GetByID)
			r.Patch("/accounts/{id}", accountHandler.Update)
			r.Delete("/accounts/{id}", accountHandler.Delete)

			r.Get("/agents", agentAdmin.List)
			r.Get("/agents/{id}", agentAdmin.GetByID)
			r.Delete("/agents/{id}", agentAdmin.Delete)

			r.Get("/servers", serverHandler.List)
			r.Get("/servers/{id}", serverHandler.GetByID)

			r.Post("/queue", queueHandler.Enqueue)
			r.Get("/queue", queueHandler.List)
			r.Get("/queue/{id}", queueHandler.GetByID)
			r.Get("/queue/{id}/logs", queueHandler.Logs)
		})
	})

	return r
}

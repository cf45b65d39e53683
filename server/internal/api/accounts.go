package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"reconmc/server/internal/db"
	"reconmc/server/internal/repositories"
)

// AccountHandler groups the operator-facing Microsoft account CRUD endpoints.
type AccountHandler struct {
	repo   repositories.AccountRepository
	logger *zap.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(repo repositories.AccountRepository, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{repo: repo, logger: logger.Named("account_handler")}
}

type accountResponse struct {
	ID                 string  `json:"id"`
	Type               string  `json:"type"`
	Username            string  `json:"username"`
	CurrentUsage       int     `json:"currentUsage"`
	MaxConcurrent      int     `json:"maxConcurrent"`
	IsActive           bool    `json:"isActive"`
	IsValid            bool    `json:"isValid"`
	LastValidationError string  `json:"lastValidationError,omitempty"`
}

func accountToResponse(a *db.Account) accountResponse {
	return accountResponse{
		ID:                  a.ID.String(),
		Type:                a.Type,
		Username:            a.Username,
		CurrentUsage:        a.CurrentUsage,
		MaxConcurrent:       a.MaxConcurrent,
		IsActive:            a.IsActive,
		IsValid:             a.IsValid,
		LastValidationError: a.LastValidationError,
	}
}

// List handles GET /api/accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, total, err := h.repo.List(r.Context(), paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list accounts", zap.Error(err))
		ErrInternal(w)
		return
	}
	items := make([]accountResponse, len(accounts))
	for i := range accounts {
		items[i] = accountToResponse(&accounts[i])
	}
	Ok(w, map[string]any{"items": items, "total": total})
}

type createAccountRequest struct {
	Type          string `json:"type"`
	Username      string `json:"username"`
	AccessToken   string `json:"accessToken"`
	RefreshToken  string `json:"refreshToken"`
	MaxConcurrent int    `json:"maxConcurrent"`
}

// Create handles POST /api/accounts.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.RefreshToken == "" {
		ErrBadRequest(w, "username and refreshToken are required")
		return
	}
	if req.Type == "" {
		req.Type = "microsoft"
	}
	if req.MaxConcurrent <= 0 {
		req.MaxConcurrent = 1
	}

	account := &db.Account{
		Type:          req.Type,
		Username:      req.Username,
		AccessToken:   db.EncryptedString(req.AccessToken),
		RefreshToken:  db.EncryptedString(req.RefreshToken),
		MaxConcurrent: req.MaxConcurrent,
		IsActive:      true,
		IsValid:       true,
	}
	if err := h.repo.Create(r.Context(), account); err != nil {
		h.logger.Error("failed to create account", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, accountToResponse(account))
}

// GetByID handles GET /api/accounts/{id}.
func (h *AccountHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	account, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get account", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, accountToResponse(account))
}

type updateAccountRequest struct {
	MaxConcurrent *int  `json:"maxConcurrent"`
	IsActive      *bool `json:"isActive"`
}

// Update handles PATCH /api/accounts/{id}.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get account for update", zap.Error(err))
		ErrInternal(w)
		return
	}

	if req.MaxConcurrent != nil && *req.MaxConcurrent > 0 {
		account.MaxConcurrent = *req.MaxConcurrent
	}
	if req.IsActive != nil {
		account.IsActive = *req.IsActive
	}

	if err := h.repo.Update(r.Context(), account); err != nil {
		h.logger.Error("failed to update account", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, accountToResponse(account))
}

// Delete handles DELETE /api/accounts/{id}.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to delete account", zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

package subkeys

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/subkeyhq/gateway/internal/accounts"
	"github.com/subkeyhq/gateway/internal/httperr"
	"github.com/subkeyhq/gateway/internal/logger"
)

type Handler struct {
	logger  *logger.Logger
	service *Service
}

func NewHandler(log *logger.Logger, service *Service) *Handler {
	return &Handler{logger: log, service: service}
}

type issueRequest struct {
	Name       string `json:"name"`
	TokenLimit *int64 `json:"token_limit"`
}

type updateRequest struct {
	Name       *string `json:"name"`
	TokenLimit *int64  `json:"token_limit"`
}

// Issue handles POST /v1/subkeys. The raw secret appears in this
// response and nowhere else.
func (h *Handler) Issue(c *gin.Context) {
	principal, ok := accounts.PrincipalFrom(c)
	if !ok {
		httperr.Respond(c, httperr.Internal("principal not found in context"))
		return
	}

	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Respond(c, httperr.Validation("invalid request body: "+err.Error()))
		return
	}

	var limit int64
	if req.TokenLimit != nil {
		limit = *req.TokenLimit
	}

	key, rawSecret, err := h.service.Issue(c.Request.Context(), principal.ID, req.Name, limit)
	if err != nil {
		switch {
		case errors.Is(err, ErrNegativeLimit):
			httperr.Respond(c, httperr.Validation(err.Error()))
		case errors.Is(err, ErrQuotaExceeded):
			httperr.Respond(c, httperr.Forbidden(err.Error()))
		default:
			h.logger.Error("Failed to issue subkey", "owner", principal.ID, "error", err)
			httperr.Respond(c, httperr.Internal("failed to issue subkey"))
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"record": key,
		"subkey": rawSecret,
	})
}

// List handles GET /v1/subkeys.
func (h *Handler) List(c *gin.Context) {
	principal, ok := accounts.PrincipalFrom(c)
	if !ok {
		httperr.Respond(c, httperr.Internal("principal not found in context"))
		return
	}

	keys, err := h.service.List(c.Request.Context(), principal.ID)
	if err != nil {
		h.logger.Error("Failed to list subkeys", "owner", principal.ID, "error", err)
		httperr.Respond(c, httperr.Internal("failed to list subkeys"))
		return
	}

	c.JSON(http.StatusOK, keys)
}

// Update handles PATCH /v1/subkeys/:id.
func (h *Handler) Update(c *gin.Context) {
	principal, ok := accounts.PrincipalFrom(c)
	if !ok {
		httperr.Respond(c, httperr.Internal("principal not found in context"))
		return
	}

	id := c.Param("id")
	if id == "" {
		httperr.Respond(c, httperr.Validation("subkey id required"))
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Respond(c, httperr.Validation("invalid request body: "+err.Error()))
		return
	}

	key, err := h.service.Update(c.Request.Context(), principal.ID, id, req.Name, req.TokenLimit)
	if err != nil {
		h.respondLifecycleError(c, principal.ID, id, err, "update")
		return
	}

	c.JSON(http.StatusOK, key)
}

// Revoke handles PATCH /v1/subkeys/:id/revoke.
func (h *Handler) Revoke(c *gin.Context) {
	principal, ok := accounts.PrincipalFrom(c)
	if !ok {
		httperr.Respond(c, httperr.Internal("principal not found in context"))
		return
	}

	id := c.Param("id")
	if id == "" {
		httperr.Respond(c, httperr.Validation("subkey id required"))
		return
	}

	key, err := h.service.Revoke(c.Request.Context(), principal.ID, id)
	if err != nil {
		h.respondLifecycleError(c, principal.ID, id, err, "revoke")
		return
	}

	c.JSON(http.StatusOK, key)
}

func (h *Handler) respondLifecycleError(c *gin.Context, ownerID, id string, err error, op string) {
	switch {
	case errors.Is(err, ErrNegativeLimit):
		httperr.Respond(c, httperr.Validation(err.Error()))
	case errors.Is(err, ErrSubkeyNotFound):
		httperr.Respond(c, httperr.NotFound("subkey not found"))
	case errors.Is(err, ErrSubkeyRevoked):
		httperr.Respond(c, httperr.Conflict("subkey is revoked"))
	default:
		h.logger.Error("Subkey operation failed", "op", op, "owner", ownerID, "subkey", id, "error", err)
		httperr.Respond(c, httperr.Internal("failed to "+op+" subkey"))
	}
}

package vault

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/subkeyhq/gateway/internal/accounts"
	"github.com/subkeyhq/gateway/internal/httperr"
	"github.com/subkeyhq/gateway/internal/logger"
)

type Handler struct {
	logger *logger.Logger
	store  *Store
}

func NewHandler(log *logger.Logger, store *Store) *Handler {
	return &Handler{logger: log, store: store}
}

type setRequest struct {
	APIKey string `json:"api_key"`
}

// Set handles PUT /v1/credential.
func (h *Handler) Set(c *gin.Context) {
	principal, ok := accounts.PrincipalFrom(c)
	if !ok {
		httperr.Respond(c, httperr.Internal("principal not found in context"))
		return
	}

	var req setRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Respond(c, httperr.Validation("invalid request body: "+err.Error()))
		return
	}

	secret := strings.TrimSpace(req.APIKey)
	if secret == "" {
		httperr.Respond(c, httperr.Validation("api_key is required"))
		return
	}

	if err := h.store.Set(c.Request.Context(), principal.ID, secret); err != nil {
		h.logger.Error("Failed to store master credential", "owner", principal.ID, "error", err)
		httperr.Respond(c, httperr.Internal("failed to store credential"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "credential saved"})
}

// Get handles GET /v1/credential. Only metadata crosses this interface.
func (h *Handler) Get(c *gin.Context) {
	principal, ok := accounts.PrincipalFrom(c)
	if !ok {
		httperr.Respond(c, httperr.Internal("principal not found in context"))
		return
	}

	meta, err := h.store.Get(c.Request.Context(), principal.ID)
	if err != nil {
		h.logger.Error("Failed to read credential metadata", "owner", principal.ID, "error", err)
		httperr.Respond(c, httperr.Internal("failed to read credential"))
		return
	}

	c.JSON(http.StatusOK, meta)
}

// Delete handles DELETE /v1/credential.
func (h *Handler) Delete(c *gin.Context) {
	principal, ok := accounts.PrincipalFrom(c)
	if !ok {
		httperr.Respond(c, httperr.Internal("principal not found in context"))
		return
	}

	if err := h.store.Delete(c.Request.Context(), principal.ID); err != nil {
		h.logger.Error("Failed to delete master credential", "owner", principal.ID, "error", err)
		httperr.Respond(c, httperr.Internal("failed to delete credential"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "credential removed"})
}

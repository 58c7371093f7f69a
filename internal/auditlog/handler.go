package auditlog

import (
	"net/http"

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

// List handles GET /v1/logs.
func (h *Handler) List(c *gin.Context) {
	principal, ok := accounts.PrincipalFrom(c)
	if !ok {
		httperr.Respond(c, httperr.Internal("principal not found in context"))
		return
	}

	entries, err := h.store.ListByOwner(c.Request.Context(), principal.ID)
	if err != nil {
		h.logger.Error("Failed to list audit entries", "owner", principal.ID, "error", err)
		httperr.Respond(c, httperr.Internal("failed to list logs"))
		return
	}

	c.JSON(http.StatusOK, entries)
}

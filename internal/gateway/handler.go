package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

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

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// Generate handles POST /v1/generate. Callers authenticate with a raw
// subkey secret, not an owner session.
func (h *Handler) Generate(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		httperr.Respond(c, httperr.Unauthorized("Missing API key"))
		return
	}
	rawSecret := strings.TrimPrefix(authHeader, "Bearer ")

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Respond(c, httperr.Validation("invalid request body: "+err.Error()))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		httperr.Respond(c, httperr.Validation("Invalid prompt"))
		return
	}

	output, err := h.service.AuthenticateAndExecute(c.Request.Context(), rawSecret, req.Prompt)
	if err != nil {
		httperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, output)
}

package accounts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/subkeyhq/gateway/internal/httperr"
	"github.com/subkeyhq/gateway/internal/logger"
)

const bcryptCost = 10

type Handler struct {
	logger   *logger.Logger
	store    *Store
	sessions *SessionManager
}

func NewHandler(log *logger.Logger, store *Store, sessions *SessionManager) *Handler {
	return &Handler{
		logger:   log,
		store:    store,
		sessions: sessions,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Respond(c, httperr.Validation("invalid request body: "+err.Error()))
		return
	}

	if req.Email == "" || req.Password == "" {
		httperr.Respond(c, httperr.Validation("email and password required"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		h.logger.Error("Failed to hash password", "error", err)
		httperr.Respond(c, httperr.Internal("failed to create account"))
		return
	}

	account, err := h.store.Create(c.Request.Context(), req.Email, string(hash))
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			httperr.Respond(c, httperr.Conflict("email already exists"))
			return
		}
		h.logger.Error("Failed to create account", "error", err)
		httperr.Respond(c, httperr.Internal("failed to create account"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": account})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Respond(c, httperr.Validation("invalid request body: "+err.Error()))
		return
	}

	if req.Email == "" || req.Password == "" {
		httperr.Respond(c, httperr.Validation("email and password required"))
		return
	}

	account, err := h.store.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			httperr.Respond(c, httperr.Unauthorized("invalid credentials"))
			return
		}
		h.logger.Error("Failed to look up account", "error", err)
		httperr.Respond(c, httperr.Internal("failed to log in"))
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash()), []byte(req.Password)) != nil {
		httperr.Respond(c, httperr.Unauthorized("invalid credentials"))
		return
	}

	token, err := h.sessions.Issue(account)
	if err != nil {
		h.logger.Error("Failed to issue session token", "error", err)
		httperr.Respond(c, httperr.Internal("failed to log in"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	principal, ok := PrincipalFrom(c)
	if !ok {
		httperr.Respond(c, httperr.Internal("principal not found in context"))
		return
	}
	c.JSON(http.StatusOK, principal)
}

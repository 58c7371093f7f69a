package subkeys_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subkeyhq/gateway/internal/accounts"
	"github.com/subkeyhq/gateway/internal/db"
	"github.com/subkeyhq/gateway/internal/logger"
	"github.com/subkeyhq/gateway/internal/subkeys"
)

type handlerFixture struct {
	router   *gin.Engine
	sessions *accounts.SessionManager
	token    string
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	database, err := db.OpenSQLite(ctx, logger.Development(), db.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store, err := subkeys.NewStore(ctx, database)
	require.NoError(t, err)

	service := subkeys.NewService(logger.Development(), store, &auditRecorder{})
	handler := subkeys.NewHandler(logger.Development(), service)

	sessions := accounts.NewSessionManager("test-jwt-secret", time.Hour)
	token, err := sessions.Issue(&accounts.Account{ID: "owner1", Email: "owner@example.com"})
	require.NoError(t, err)

	router := gin.New()
	authed := router.Group("/v1", accounts.RequireAuth(sessions))
	authed.POST("/subkeys", handler.Issue)
	authed.GET("/subkeys", handler.List)
	authed.PATCH("/subkeys/:id", handler.Update)
	authed.PATCH("/subkeys/:id/revoke", handler.Revoke)

	return &handlerFixture{router: router, sessions: sessions, token: token}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func TestHandlerIssueReturnsSecretOnce(t *testing.T) {
	f := newHandlerFixture(t)

	recorder := f.do(t, http.MethodPost, "/v1/subkeys", gin.H{"name": "ci", "token_limit": 100})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var created struct {
		Record subkeys.Subkey `json:"record"`
		Subkey string         `json:"subkey"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))
	assert.True(t, strings.HasPrefix(created.Subkey, subkeys.SecretPrefix))
	assert.Equal(t, int64(100), created.Record.TokenLimit)

	// Neither the raw secret nor the hash appears in the listing.
	recorder = f.do(t, http.MethodGet, "/v1/subkeys", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), created.Subkey)
	assert.NotContains(t, recorder.Body.String(), "key_hash")
	assert.NotContains(t, recorder.Body.String(), "$2a$")
}

func TestHandlerIssueValidation(t *testing.T) {
	f := newHandlerFixture(t)

	recorder := f.do(t, http.MethodPost, "/v1/subkeys", gin.H{"token_limit": -1})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandlerQuota(t *testing.T) {
	f := newHandlerFixture(t)

	for i := 0; i < subkeys.MaxActivePerOwner; i++ {
		recorder := f.do(t, http.MethodPost, "/v1/subkeys", gin.H{"name": fmt.Sprintf("key-%d", i)})
		require.Equal(t, http.StatusCreated, recorder.Code)
	}

	recorder := f.do(t, http.MethodPost, "/v1/subkeys", gin.H{"name": "one too many"})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestHandlerRevokeFlow(t *testing.T) {
	f := newHandlerFixture(t)

	recorder := f.do(t, http.MethodPost, "/v1/subkeys", gin.H{"name": "doomed"})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var created struct {
		Record subkeys.Subkey `json:"record"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))
	id := created.Record.ID

	recorder = f.do(t, http.MethodPatch, "/v1/subkeys/"+id+"/revoke", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	// Second revoke fails instead of silently succeeding.
	recorder = f.do(t, http.MethodPatch, "/v1/subkeys/"+id+"/revoke", nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// Updates against a terminal key fail too.
	recorder = f.do(t, http.MethodPatch, "/v1/subkeys/"+id, gin.H{"name": "rename"})
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// Unknown id is NotFound.
	recorder = f.do(t, http.MethodPatch, "/v1/subkeys/missing/revoke", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHandlerRequiresSession(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/subkeys", nil)
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

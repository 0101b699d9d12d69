package middleware

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/pkg/bus"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/logger"
	"Murmur/internal/pkg/security"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	security.SetSecret("middleware-test-secret")
}

func newAuthRouter(store bus.Store) *gin.Engine {
	r := gin.New()
	r.Use(TraceMiddleware(), NewAuthenticator(store).AuthMiddleware())
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.GetUint64(UserIDKey),
			"trace_id": logger.TraceID(c.Request.Context()),
		})
	})
	return r
}

func doGet(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func businessCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var res dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res.Code
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	token, err := security.GenerateToken(7, nil)
	require.NoError(t, err)

	w := doGet(newAuthRouter(bus.NewMemoryStore(time.Now)), "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		UserID  uint64 `json:"user_id"`
		TraceID string `json:"trace_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, uint64(7), body.UserID)
	assert.NotEmpty(t, body.TraceID)
	assert.Equal(t, body.TraceID, w.Header().Get(TraceHeader))
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	r := newAuthRouter(bus.NewMemoryStore(time.Now))

	assert.Equal(t, 401, businessCode(t, doGet(r, "")))
	assert.Equal(t, 401, businessCode(t, doGet(r, "Token abc")))
	assert.Equal(t, 401, businessCode(t, doGet(r, "Bearer not.a.jwt")))
}

func TestAuthMiddleware_RevokedToken(t *testing.T) {
	store := bus.NewMemoryStore(time.Now)
	token, err := security.GenerateToken(7, nil)
	require.NoError(t, err)
	sig, err := security.ExtractSignature(token)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), consts.TokenRevokedKey+sig, "1", time.Hour))

	assert.Equal(t, 401, businessCode(t, doGet(newAuthRouter(store), "Bearer "+token)))
}

func TestAuthMiddleware_StoreOutageStillAuthenticates(t *testing.T) {
	store := bus.NewMemoryStore(time.Now)
	store.SetOffline(true)
	token, err := security.GenerateToken(7, nil)
	require.NoError(t, err)

	w := doGet(newAuthRouter(store), "Bearer "+token)
	assert.Contains(t, w.Body.String(), `"user_id":7`)
}

func TestTraceMiddleware_KeepsIncomingID(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, logger.TraceID(c.Request.Context())) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(TraceHeader))
}

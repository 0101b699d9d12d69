package handler

import (
	"Murmur/internal/api/middleware"
	"Murmur/internal/pkg/bus"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/security"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoServer struct {
	served chan uint64
}

func (s *echoServer) Serve(_ context.Context, userID uint64, conn *websocket.Conn) {
	s.served <- userID
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"hello"}`))
	_ = conn.Close()
}

func wsFixture(t *testing.T) (*httptest.Server, *echoServer, bus.Store) {
	t.Helper()
	security.SetSecret("ws-test-secret")
	store := bus.NewMemoryStore(time.Now)
	gw := &echoServer{served: make(chan uint64, 1)}

	r := gin.New()
	r.GET("/ws", NewWsHandler(middleware.NewAuthenticator(store), gw).Connect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, gw, store
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func TestWsHandler_QueryToken(t *testing.T) {
	srv, gw, _ := wsFixture(t)
	token, err := security.GenerateToken(42, nil)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token="+token), nil)
	require.NoError(t, err)
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"hello"}`, string(msg))
	assert.Equal(t, uint64(42), <-gw.served)
}

func TestWsHandler_HeaderToken(t *testing.T) {
	srv, gw, _ := wsFixture(t)
	token, err := security.GenerateToken(9, nil)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, uint64(9), <-gw.served)
}

func TestWsHandler_RejectsBeforeUpgrade(t *testing.T) {
	srv, gw, store := wsFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "rejection is a normal JSON response")

	token, err := security.GenerateToken(42, nil)
	require.NoError(t, err)
	sig, err := security.ExtractSignature(token)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), consts.TokenRevokedKey+sig, "1", time.Hour))

	_, _, err = websocket.DefaultDialer.Dial(wsURL(srv, "?token="+token), nil)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Empty(t, gw.served)
}

package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, h http.HandlerFunc) Resolver {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewResolverWithClient(resty.New().SetBaseURL(srv.URL))
}

func TestResolve_Post(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/api/internal/posts/p1", req.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":200,"message":"success","data":{"id":"p1","author_id":9,"author_name":"neo","caption":"hi","media_url":"a.png"}}`))
	})

	item, err := r.Resolve(context.Background(), "post", "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", item.ID)
	assert.Equal(t, "post", item.Type)
	assert.Equal(t, uint64(9), item.AuthorID)
	assert.Equal(t, "hi", item.Caption)
}

func TestResolve_NotFound(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/api/internal/reels/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/api/internal/reels/deleted":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"code":200,"message":"success","data":{"id":"deleted","is_deleted":true}}`))
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"code":404,"message":"帖子不存在","data":null}`))
		}
	})

	for _, id := range []string{"gone", "deleted", "other"} {
		_, err := r.Resolve(context.Background(), "reel", id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}

	_, err := r.Resolve(context.Background(), "story", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_ServerError(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := r.Resolve(context.Background(), "post", "p1")
	assert.ErrorIs(t, err, ErrBadResponse)
}

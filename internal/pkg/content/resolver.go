// Package content 帖子/短视频服务的只读客户端，发送分享消息时取快照
package content

import (
	"Murmur/internal/api/config"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

var (
	ErrNotFound    = errors.New("content: not found or deleted")
	ErrBadResponse = errors.New("content: unexpected response")
)

// Item 被分享的内容
type Item struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	AuthorID   uint64 `json:"author_id"`
	AuthorName string `json:"author_name"`
	Caption    string `json:"caption"`
	MediaURL   string `json:"media_url"`
	Thumbnail  string `json:"thumbnail"`
	IsDeleted  bool   `json:"is_deleted"`
}

// Resolver 按类型和 ID 查询内容
type Resolver interface {
	Resolve(ctx context.Context, contentType, id string) (*Item, error)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type httpResolver struct {
	client *resty.Client
}

// NewResolver 内容服务返回 {code, message, data} 统一结构
func NewResolver(cfg config.ContentConfig) Resolver {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutMs)*time.Millisecond).
		SetRetryCount(2).
		SetRetryWaitTime(100*time.Millisecond).
		SetHeader("Accept", "application/json").
		SetJSONUnmarshaler(json.Unmarshal)
	return &httpResolver{client: client}
}

// NewResolverWithClient 测试时注入
func NewResolverWithClient(client *resty.Client) Resolver {
	return &httpResolver{client: client.SetJSONUnmarshaler(json.Unmarshal)}
}

func (s *httpResolver) Resolve(ctx context.Context, contentType, id string) (*Item, error) {
	var path string
	switch contentType {
	case "post":
		path = "/api/internal/posts/"
	case "reel":
		path = "/api/internal/reels/"
	default:
		return nil, fmt.Errorf("%w: type %q", ErrNotFound, contentType)
	}

	var env envelope
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&env).
		Get(path + url.PathEscape(id))
	if err != nil {
		log.WarnContext(ctx, "content service request failed", "type", contentType, "id", id, "err", err)
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode())
	}
	if env.Code == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if env.Code != http.StatusOK || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: code %d %s", ErrBadResponse, env.Code, env.Message)
	}

	var item Item
	if err := json.Unmarshal(env.Data, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if item.IsDeleted {
		return nil, ErrNotFound
	}
	if item.ID == "" {
		item.ID = id
	}
	item.Type = contentType
	return &item, nil
}

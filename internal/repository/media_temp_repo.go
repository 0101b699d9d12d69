package repository

import (
	"Murmur/internal/pkg/bus"
	"Murmur/internal/pkg/consts"
	"context"
	log "log/slog"
	"strings"

	"github.com/goccy/go-json"
)

// MediaTempMetadata 已上传但尚未被消息引用的对象
type MediaTempMetadata struct {
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	Thumbnail string `json:"thumbnail,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// MediaTempRepo 未引用媒体的登记表，定时任务据此清理
type MediaTempRepo interface {
	Track(ctx context.Context, fileKey string, meta MediaTempMetadata) error
	// Claim 消息引用后移出登记表
	Claim(ctx context.Context, fileKeys ...string) error
	All(ctx context.Context) (map[string]MediaTempMetadata, error)
	Forget(ctx context.Context, fileKey string) error
}

type mediaTempRepoImpl struct {
	store bus.Store
}

// NewMediaTempRepo 每个对象一个 key：im:media:temp:<fileKey>，不设过期，由清理任务删除
func NewMediaTempRepo(store bus.Store) MediaTempRepo {
	return &mediaTempRepoImpl{store: store}
}

func (s *mediaTempRepoImpl) Track(ctx context.Context, fileKey string, meta MediaTempMetadata) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, consts.MediaTempKey+fileKey, string(b), 0)
}

func (s *mediaTempRepoImpl) Claim(ctx context.Context, fileKeys ...string) error {
	if len(fileKeys) == 0 {
		return nil
	}
	keys := make([]string, len(fileKeys))
	for i, k := range fileKeys {
		keys[i] = consts.MediaTempKey + k
	}
	return s.store.Delete(ctx, keys...)
}

func (s *mediaTempRepoImpl) All(ctx context.Context) (map[string]MediaTempMetadata, error) {
	keys, err := s.store.Scan(ctx, consts.MediaTempKey)
	if err != nil {
		return nil, err
	}
	out := make(map[string]MediaTempMetadata, len(keys))
	for _, key := range keys {
		val, found, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		// 扫描与读取之间被 Claim
		if !found {
			continue
		}
		fileKey := strings.TrimPrefix(key, consts.MediaTempKey)
		var meta MediaTempMetadata
		if err = json.Unmarshal([]byte(val), &meta); err != nil {
			log.WarnContext(ctx, "invalid media meta format", "fileKey", fileKey)
			continue
		}
		out[fileKey] = meta
	}
	return out, nil
}

func (s *mediaTempRepoImpl) Forget(ctx context.Context, fileKey string) error {
	return s.store.Delete(ctx, consts.MediaTempKey+fileKey)
}

package service

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/model"
	"Murmur/internal/pkg/util"
	"Murmur/internal/repository"
	"bytes"
	"context"
	"fmt"
	"io"
	log "log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxMediaSize    = 50 << 20
	MediaOrphanTTL  = 24 * time.Hour
	thumbnailSuffix = "_thumb.jpg"
)

// 非音视频图片时允许的文件类型
var allowedFileTypes = map[string]bool{
	"application/pdf": true,
	"application/zip": true,
	"text/plain":      true,
}

// MediaKeyPrefix 用户上传对象统一放在 chat/<uid>/ 下
func MediaKeyPrefix(userID uint64) string {
	return "chat/" + strconv.FormatUint(userID, 10) + "/"
}

// OwnsMediaKey key 是否位于该用户自己的上传目录
func OwnsMediaKey(userID uint64, key string) bool {
	return strings.HasPrefix(key, MediaKeyPrefix(userID)) && !strings.Contains(key, "..")
}

// ObjectStore 对象存储
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, objectName string) error
	PresignedGet(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// MediaTokenCodec 媒体令牌签发与解析
type MediaTokenCodec interface {
	MintMediaToken(url string) (string, error)
	ResolveMediaToken(token string, ttl time.Duration) (string, bool)
}

// MediaFile 待上传的文件
type MediaFile struct {
	Filename string
	Size     int64
	Reader   io.ReadSeeker
}

// MediaService 聊天媒体
type MediaService interface {
	Upload(ctx context.Context, userID uint64, file *MediaFile) (*dto.MediaUploadDTO, error)
	// Resolve 令牌换预签名下载地址
	Resolve(ctx context.Context, token string) (string, error)
	// CleanupOrphans 删除超过 MediaOrphanTTL 仍未被消息引用的对象
	CleanupOrphans(ctx context.Context) (int, error)
}

type mediaServiceImpl struct {
	store         ObjectStore
	mediaRepo     repository.MediaTempRepo
	codec         MediaTokenCodec
	tokenTTL      time.Duration
	presignExpiry time.Duration
	now           Clock
}

// MediaOption 可选依赖
type MediaOption func(*mediaServiceImpl)

func WithMediaClock(now Clock) MediaOption {
	return func(s *mediaServiceImpl) { s.now = now }
}

func NewMediaService(
	store ObjectStore,
	mediaRepo repository.MediaTempRepo,
	codec MediaTokenCodec,
	tokenTTL, presignExpiry time.Duration,
	opts ...MediaOption,
) MediaService {
	s := &mediaServiceImpl{
		store:         store,
		mediaRepo:     mediaRepo,
		codec:         codec,
		tokenTTL:      tokenTTL,
		presignExpiry: presignExpiry,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload 上传原文件，图片额外生成缩略图，登记为待引用
func (s *mediaServiceImpl) Upload(ctx context.Context, userID uint64, file *MediaFile) (*dto.MediaUploadDTO, error) {
	if file == nil || file.Reader == nil || file.Size <= 0 {
		return nil, ErrParamInvalid
	}
	if file.Size > MaxMediaSize {
		return nil, ErrFileTooLarge
	}

	contentType, err := util.GetSafeContentType(file.Reader)
	if err != nil {
		return nil, ErrParamInvalid
	}
	mediaType := model.MediaTypeOf(contentType)
	if mediaType == model.MediaFile && !allowedFileTypes[contentType] {
		return nil, ErrFileNotSupported
	}

	now := s.now()
	objectName := MediaKeyPrefix(userID) + now.Format("2006/01/02") + "/" + uuid.NewString() + strings.ToLower(path.Ext(file.Filename))

	fileKey, err := s.store.Upload(ctx, objectName, file.Reader, file.Size, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: upload chat media: %v", ErrStoreUnavailable, err)
	}

	res := &dto.MediaUploadDTO{
		URL:      fileKey,
		Type:     string(mediaType),
		MimeType: contentType,
		Size:     file.Size,
		Original: file.Filename,
	}

	if mediaType == model.MediaImage {
		s.attachThumbnail(ctx, file.Reader, res)
	}

	meta := repository.MediaTempMetadata{
		MimeType:  contentType,
		Size:      file.Size,
		Thumbnail: res.Thumbnail,
		CreatedAt: now.Unix(),
	}
	if err = s.mediaRepo.Track(ctx, fileKey, meta); err != nil {
		// 登记失败只影响清理，不影响本次上传
		log.WarnContext(ctx, "track chat media failed", "fileKey", fileKey, "err", err)
	}

	if res.Token, err = s.codec.MintMediaToken(fileKey); err != nil {
		return nil, fmt.Errorf("mint media token: %w", err)
	}
	if res.Thumbnail != "" {
		if res.ThumbnailToken, err = s.codec.MintMediaToken(res.Thumbnail); err != nil {
			return nil, fmt.Errorf("mint media token: %w", err)
		}
	}

	log.InfoContext(ctx, "chat media uploaded", "fileKey", fileKey, "type", contentType, "size", file.Size)
	return res, nil
}

// attachThumbnail 失败时只记录日志，原图照常返回
func (s *mediaServiceImpl) attachThumbnail(ctx context.Context, reader io.ReadSeeker, res *dto.MediaUploadDTO) {
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		log.WarnContext(ctx, "rewind image failed", "fileKey", res.URL, "err", err)
		return
	}
	thumb, width, height, err := util.MakeThumbnail(reader)
	if err != nil {
		log.WarnContext(ctx, "make thumbnail failed", "fileKey", res.URL, "err", err)
		return
	}
	res.Width, res.Height = width, height

	thumbName := strings.TrimSuffix(res.URL, path.Ext(res.URL)) + thumbnailSuffix
	thumbKey, err := s.store.Upload(ctx, thumbName, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg")
	if err != nil {
		log.WarnContext(ctx, "upload thumbnail failed", "fileKey", res.URL, "err", err)
		return
	}
	res.Thumbnail = thumbKey
}

func (s *mediaServiceImpl) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMediaNotFound
	}
	fileKey, ok := s.codec.ResolveMediaToken(token, s.tokenTTL)
	if !ok {
		return "", ErrMediaNotFound
	}
	url, err := s.store.PresignedGet(ctx, fileKey, s.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("%w: presign chat media: %v", ErrStoreUnavailable, err)
	}
	return url, nil
}

func (s *mediaServiceImpl) CleanupOrphans(ctx context.Context) (int, error) {
	all, err := s.mediaRepo.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("list media temp: %w", err)
	}

	deadline := s.now().Add(-MediaOrphanTTL).Unix()
	count := 0
	for fileKey, meta := range all {
		if meta.CreatedAt > deadline {
			continue
		}
		if err = s.store.Delete(ctx, fileKey); err != nil {
			log.ErrorContext(ctx, "failed to delete expired file", "fileKey", fileKey, "err", err)
			continue
		}
		if meta.Thumbnail != "" {
			if err = s.store.Delete(ctx, meta.Thumbnail); err != nil {
				log.WarnContext(ctx, "failed to delete expired thumbnail", "fileKey", meta.Thumbnail, "err", err)
			}
		}
		if err = s.mediaRepo.Forget(ctx, fileKey); err != nil {
			log.ErrorContext(ctx, "failed to forget media", "fileKey", fileKey, "err", err)
		}
		count++
	}
	return count, nil
}

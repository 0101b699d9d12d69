package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// Store 聊天媒体对象存储，读写走内网客户端，预签名走外网客户端
type Store struct {
	client *minio.Client
	signer *minio.Client
	bucket string
}

func NewStore(client, signer *minio.Client, bucket string) *Store {
	if signer == nil {
		signer = client
	}
	return &Store{client: client, signer: signer, bucket: bucket}
}

// Upload 上传对象，返回对象 key
func (s *Store) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return info.Key, nil
}

// Delete 删除对象，对象不存在时不报错
func (s *Store) Delete(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// PresignedGet 生成限时下载地址
func (s *Store) PresignedGet(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := s.signer.PresignedGetObject(ctx, s.bucket, objectName, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign file: %w", err)
	}
	return u.String(), nil
}

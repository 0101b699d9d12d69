package minio

import (
	"Murmur/internal/api/config"
	"context"
	"fmt"
	log "log/slog"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// region 固定区域，避免签名前向外部地址查询桶位置
const region = "us-east-1"

// Init 初始化 MinIO 客户端，确认存储桶存在
func Init(ctx context.Context, cfg config.MinIOConfig) (*Store, error) {
	internal, err := newClient(cfg.InternalEndpoint, cfg.InternalUseSSL, cfg)
	if err != nil {
		return nil, err
	}
	if _, err = internal.ListBuckets(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to minio server: %w", err)
	}

	// 预签名地址要给客户端用，签名时的 host 必须是外部地址
	signer := internal
	if cfg.ExternalEndpoint != "" {
		u, err := url.Parse(cfg.ExternalEndpoint)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid minio external endpoint %q", cfg.ExternalEndpoint)
		}
		if signer, err = newClient(u.Host, u.Scheme == "https", cfg); err != nil {
			return nil, err
		}
	}

	if err = ensureBucket(ctx, internal, cfg.MainBucket); err != nil {
		return nil, err
	}

	return NewStore(internal, signer, cfg.MainBucket), nil
}

func newClient(endpoint string, useSSL bool, cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}
	return client, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	log.Info("minio bucket created", "bucket", bucket)
	return nil
}

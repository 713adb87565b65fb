// Package objstore はS3互換オブジェクトストレージ（MinIO）のクライアントを提供する。
package objstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options はクライアントの接続設定。
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// PublicURL は公開URLのベース。空の場合はEndpointから組み立てる。
	PublicURL string
}

// Client はMinIOクライアントのラッパー。
type Client struct {
	mc        *minio.Client
	publicURL string
}

// NewClient はClientを生成する。
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("storage access key and secret key are required")
	}

	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &Client{mc: mc, publicURL: publicBase(opts)}, nil
}

func publicBase(opts Options) string {
	if opts.PublicURL != "" {
		return strings.TrimRight(opts.PublicURL, "/")
	}
	scheme := "http://"
	if opts.UseSSL {
		scheme = "https://"
	}
	return scheme + opts.Endpoint
}

// publicReadPolicy は匿名ユーザーにオブジェクトの読み取りのみを許可するバケットポリシー。
const publicReadPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

// EnsureBucket はバケットが存在しない場合に作成し、公開読み取りポリシーを設定する。
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	if err := c.mc.SetBucketPolicy(ctx, bucket, fmt.Sprintf(publicReadPolicy, bucket)); err != nil {
		return fmt.Errorf("set policy for bucket %s: %w", bucket, err)
	}
	slog.Info("storage bucket created", slog.String("bucket", bucket))
	return nil
}

// Put はオブジェクトをアップロードする。
func (c *Client) Put(ctx context.Context, bucket, name string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.mc.PutObject(ctx, bucket, name, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=3600",
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, name, err)
	}
	return nil
}

// PublicURL はオブジェクトの公開URLを返す。
func (c *Client) PublicURL(bucket, name string) string {
	return c.publicURL + "/" + bucket + "/" + name
}

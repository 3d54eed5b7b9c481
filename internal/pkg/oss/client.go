package oss

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/chirp_analysis/config"
)

type Client struct {
	bucket    *oss.Bucket
	cdnDomain string
	expire    time.Duration
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	expire := cfg.SignedURLExpire
	if expire <= 0 {
		expire = time.Hour
	}

	return &Client{
		bucket:    bucket,
		cdnDomain: cfg.CDNDomain,
		expire:    expire,
	}, nil
}

// ResolveMediaURL 将练习录像的存储引用转换为带签名的临时 URL
// 引用可以是 object key，也可以是本桶的完整 URL
func (c *Client) ResolveMediaURL(ctx context.Context, mediaRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(mediaRef) == "" {
		return "", fmt.Errorf("empty media reference")
	}

	objectKey := mediaRef
	if strings.HasPrefix(mediaRef, "http://") || strings.HasPrefix(mediaRef, "https://") {
		objectKey = c.ExtractObjectKey(mediaRef)
	}
	return c.GetSignedURL(objectKey, int64(c.expire/time.Second))
}

// GetSignedURL 生成带签名的临时访问URL（默认1小时有效）
func (c *Client) GetSignedURL(objectKey string, expireSeconds ...int64) (string, error) {
	expire := int64(3600) // 默认1小时
	if len(expireSeconds) > 0 && expireSeconds[0] > 0 {
		expire = expireSeconds[0]
	}

	signedURL, err := c.bucket.SignURL(objectKey, oss.HTTPGet, expire)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return signedURL, nil
}

// ExtractObjectKey 从 URL 中提取 object key
func (c *Client) ExtractObjectKey(url string) string {
	// 处理 CDN 域名
	if c.cdnDomain != "" {
		prefix := fmt.Sprintf("https://%s/", c.cdnDomain)
		if strings.HasPrefix(url, prefix) {
			return url[len(prefix):]
		}
	}

	// 去掉签名参数
	if i := strings.Index(url, "?"); i >= 0 {
		url = url[:i]
	}

	// 处理标准 OSS URL: https://bucket-name.endpoint/path/to/object
	parts := strings.Split(url, "/")
	if len(parts) >= 4 {
		// 从第4个部分开始是 object key
		return strings.Join(parts[3:], "/")
	}

	return path.Base(url)
}

// Passthrough 未配置 OSS 时使用：只接受已经可直接访问的 http(s) 地址
type Passthrough struct{}

func (Passthrough) ResolveMediaURL(ctx context.Context, mediaRef string) (string, error) {
	if strings.HasPrefix(mediaRef, "http://") || strings.HasPrefix(mediaRef, "https://") {
		return mediaRef, nil
	}
	return "", fmt.Errorf("media reference %q is not a URL and OSS is not configured", mediaRef)
}

package oss

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/chirp_analysis/config"
)

func newTestClient(t *testing.T, cdn string) *Client {
	t.Helper()
	c, err := NewClient(&config.OSSConfig{
		Endpoint:        "oss-cn-hangzhou.aliyuncs.com",
		AccessKeyID:     "test-key-id",
		AccessKeySecret: "test-key-secret",
		BucketName:      "chirp-media",
		CDNDomain:       cdn,
		SignedURLExpire: 30 * time.Minute,
	})
	require.NoError(t, err)
	return c
}

func TestClient_ExtractObjectKey(t *testing.T) {
	c := newTestClient(t, "cdn.example.com")

	tests := []struct {
		url  string
		want string
	}{
		{url: "https://cdn.example.com/media/c1/a.webm", want: "media/c1/a.webm"},
		{url: "https://chirp-media.oss-cn-hangzhou.aliyuncs.com/media/c1/a.webm", want: "media/c1/a.webm"},
		{url: "https://chirp-media.oss-cn-hangzhou.aliyuncs.com/media/a.webm?Expires=1&Signature=x", want: "media/a.webm"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.ExtractObjectKey(tt.url))
	}
}

func TestClient_ResolveMediaURL(t *testing.T) {
	c := newTestClient(t, "")

	signed, err := c.ResolveMediaURL(context.Background(), "media/c1/a.webm")
	require.NoError(t, err)

	lower := strings.ToLower(signed)
	assert.Contains(t, signed, "media/c1/a.webm")
	assert.Contains(t, lower, "expires")
	assert.Contains(t, lower, "signature")

	fromURL, err := c.ResolveMediaURL(context.Background(), "https://chirp-media.oss-cn-hangzhou.aliyuncs.com/media/c1/a.webm")
	require.NoError(t, err)
	assert.Contains(t, fromURL, "media/c1/a.webm")

	_, err = c.ResolveMediaURL(context.Background(), "  ")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ResolveMediaURL(ctx, "media/a.webm")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPassthrough(t *testing.T) {
	url, err := Passthrough{}.ResolveMediaURL(context.Background(), "http://localhost:9000/a.webm")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/a.webm", url)

	_, err = Passthrough{}.ResolveMediaURL(context.Background(), "media/a.webm")
	assert.Error(t, err)
}

package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/qs3c/chirp_analysis/config"
)

const maxResponseBytes = 8 << 20

var errMissingField = errors.New("missing required field")

// caller 三个分析服务共用的 HTTP 调用
type caller struct {
	baseURL string
	http    *http.Client
}

func newCaller(baseURL string) *caller {
	return &caller{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// postJSON 在 timeout 内完成一次 POST 并解码响应
func (c *caller) postJSON(ctx context.Context, timeout time.Duration, path string, body, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("capability base URL is not configured")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Clients 按配置创建的三个分析客户端
type Clients struct {
	Video  *VideoClient
	Speech *SpeechClient
	Audio  *AudioClient
}

// NewClients 根据配置创建分析客户端
func NewClients(cfg config.CapabilityConfig) *Clients {
	c := newCaller(cfg.BaseURL)
	return &Clients{
		Video:  &VideoClient{caller: c, timeout: cfg.VideoTimeout},
		Speech: &SpeechClient{caller: c, timeout: cfg.SpeechTimeout, language: cfg.Language},
		Audio:  &AudioClient{caller: c, timeout: cfg.AudioTimeout},
	}
}

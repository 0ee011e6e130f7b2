// Package websearch 提供外部网页搜索 API 客户端
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agentic-article-api/internal/config"
)

var tracer = otel.Tracer("websearch")

// Result 单条搜索结果
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Client 搜索 API 客户端
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	maxHits    int
}

// NewClient 创建搜索客户端，endpoint 为空时客户端降级为禁用
func NewClient(cfg *config.SearchConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxHits := cfg.MaxHits
	if maxHits <= 0 {
		maxHits = 5
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		maxHits:    maxHits,
	}
}

// Enabled 搜索客户端是否可用
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// Search 执行网页搜索
func (c *Client) Search(ctx context.Context, query string, maxHits int) ([]Result, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("web search not configured")
	}
	if maxHits <= 0 || maxHits > c.maxHits {
		maxHits = c.maxHits
	}

	ctx, span := tracer.Start(ctx, "websearch.Search",
		trace.WithAttributes(attribute.Int("max_hits", maxHits)))
	defer span.End()

	payload, err := json.Marshal(map[string]any{
		"query": query,
		"num":   maxHits,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Results []Result `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	if len(parsed.Results) > maxHits {
		parsed.Results = parsed.Results[:maxHits]
	}
	span.SetAttributes(attribute.Int("result_count", len(parsed.Results)))
	return parsed.Results, nil
}

package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/internal/tlsutil"
	"github.com/BaSui01/kbroute/llm"
	"github.com/BaSui01/kbroute/llm/providers"
	"github.com/BaSui01/kbroute/llm/retry"
	"github.com/BaSui01/kbroute/types"
)

const (
	providerName       = "tavily"
	defaultBaseURL     = "https://api.tavily.com"
	searchPath         = "/search"
	defaultSearchDepth = "basic"
	defaultHTTPTimeout = 30 * time.Second
)

// SearchResult 单条搜索结果
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Client 搜索后端
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
	Name() string
}

// TavilyConfig Tavily 客户端配置
type TavilyConfig struct {
	// APIKey 必填
	APIKey string
	// BaseURL 默认 https://api.tavily.com
	BaseURL string
	// SearchDepth: basic 或 advanced
	SearchDepth string
	// Timeout HTTP 超时, 默认 30s
	Timeout time.Duration
	// Retry 为空时使用 retry.DefaultRetryPolicy
	Retry      *retry.RetryPolicy
	HTTPClient *http.Client
}

// TavilyClient 调用 Tavily 搜索 API
type TavilyClient struct {
	cfg     TavilyConfig
	client  *http.Client
	retryer retry.Retryer
	logger  *zap.Logger
}

// NewTavilyClient 创建客户端. 缺少 API Key 是致命配置错误.
func NewTavilyClient(cfg TavilyConfig, logger *zap.Logger) (*TavilyClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, types.NewError(types.ErrMissingCredential, "Tavily API key is not configured (set TAVILY_API_KEY)").
			WithProvider(providerName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = defaultSearchDepth
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	logger = logger.With(zap.String("component", "websearch"), zap.String("provider", providerName))

	return &TavilyClient{
		cfg:     cfg,
		client:  client,
		retryer: retry.NewBackoffRetryer(cfg.Retry, logger),
		logger:  logger,
	}, nil
}

func (c *TavilyClient) Name() string { return providerName }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// Search 执行搜索, 429 与 5xx 会按重试策略重试
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	payload, err := json.Marshal(tavilyRequest{
		APIKey:      c.cfg.APIKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: c.cfg.SearchDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	results, err := retry.Do(ctx, c.retryer, func() ([]SearchResult, error) {
		return c.send(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("search finished",
		zap.Int("results", len(results)),
		zap.Duration("latency", time.Since(start)))

	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

func (c *TavilyClient) send(ctx context.Context, payload []byte) ([]SearchResult, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + searchPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providers.TransportError(err, providerName)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, providerName)
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: "invalid search response: " + err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: providerName,
		}
	}
	return out.Results, nil
}

var _ Client = (*TavilyClient)(nil)

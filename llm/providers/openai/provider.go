package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/kbroute/internal/tlsutil"
	"github.com/BaSui01/kbroute/llm"
	"github.com/BaSui01/kbroute/llm/providers"
	"github.com/BaSui01/kbroute/llm/retry"
	"github.com/BaSui01/kbroute/types"
	"go.uber.org/zap"
)

const (
	providerName       = "openai"
	defaultBaseURL     = "https://api.openai.com"
	defaultModel       = "gpt-4o-mini"
	completionsPath    = "/v1/chat/completions"
	modelsPath         = "/v1/models"
	defaultHTTPTimeout = 60 * time.Second
)

// Config holds the configuration for the OpenAI provider.
type Config struct {
	// APIKey is required; New fails without it.
	APIKey string

	// BaseURL defaults to https://api.openai.com.
	BaseURL string

	// Model is used when the request does not name one.
	Model string

	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration

	// Retry controls retries of transient failures. Nil uses retry.DefaultRetryPolicy.
	Retry *retry.RetryPolicy

	// HTTPClient overrides the TLS-hardened default client.
	HTTPClient *http.Client
}

// Provider sends chat completions over HTTP.
type Provider struct {
	cfg     Config
	client  *http.Client
	retryer retry.Retryer
	logger  *zap.Logger
}

// New creates the provider. A missing API key is a fatal configuration error.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, types.NewError(types.ErrMissingCredential, "LLM API key is not configured").
			WithProvider(providerName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	logger = logger.With(zap.String("component", "llm_provider"), zap.String("provider", providerName))

	return &Provider{
		cfg:     cfg,
		client:  client,
		retryer: retry.NewBackoffRetryer(cfg.Retry, logger),
		logger:  logger,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return providerName }

func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.cfg.BaseURL, "/"), path)
}

// HealthCheck verifies the provider is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(modelsPath), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	providers.SetJSONAuth(httpReq, p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.TransportError(err, providerName)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.MapHTTPError(resp.StatusCode, msg, providerName)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// Completion performs a non-streaming chat completion, retrying transient failures.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    "chat request has no messages",
			HTTPStatus: http.StatusBadRequest,
			Provider:   providerName,
		}
	}

	body := providers.ChatCompletionRequest{
		Model:     providers.ChooseModel(req, p.cfg.Model, defaultModel),
		Messages:  providers.ToWireMessages(req.Messages),
		MaxTokens: req.MaxTokens,
		TopP:      req.TopP,
		Stop:      req.Stop,
		User:      req.TraceID,
	}
	if req.Temperature != 0 {
		temp := req.Temperature
		body.Temperature = &temp
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := retry.Do(ctx, p.retryer, func() (*llm.ChatResponse, error) {
		return p.send(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("completion finished",
		zap.String("model", resp.Model),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

func (p *Provider) send(ctx context.Context, payload []byte) (*llm.ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(completionsPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	providers.SetJSONAuth(httpReq, p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
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

	var oaResp providers.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: providerName,
		}
	}

	result := providers.FromWireResponse(oaResp, providerName)
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}
	return result, nil
}

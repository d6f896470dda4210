package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/kbroute/config"
	"github.com/BaSui01/kbroute/internal/cache"
	"github.com/BaSui01/kbroute/internal/metrics"
	"github.com/BaSui01/kbroute/internal/telemetry"
	"github.com/BaSui01/kbroute/pipeline"
	"github.com/BaSui01/kbroute/prompts"
	"github.com/BaSui01/kbroute/rag"
	"github.com/BaSui01/kbroute/rag/loader"
	"github.com/BaSui01/kbroute/reasoner"
	"github.com/BaSui01/kbroute/testutil"
	"github.com/BaSui01/kbroute/testutil/mocks"
	"github.com/BaSui01/kbroute/tools/websearch"
)

// newTestApp 用模拟的 LLM、embedding 与搜索客户端组装完整组件
func newTestApp(t *testing.T, mutate func(*config.Config)) *app {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	cfg := config.DefaultConfig()
	cfg.Output = config.OutputConfig{}
	if mutate != nil {
		mutate(cfg)
	}

	store := cache.NewMapStore()
	collector := metrics.NewCollector("kbroute_test", prometheus.NewRegistry(), logger)

	retriever, err := rag.NewKnowledgeRetriever(ctx, rag.RetrieverConfig{
		DocsPath: testutil.WriteKB(t, map[string]string{
			"attention.txt": "Attention lets transformers weigh every token against every other token.",
		}),
		Loader:   loader.NewDirectoryLoader("*.txt", logger),
		Chunking: rag.ChunkingConfig{ChunkSize: 200, ChunkOverlap: 20},
	}, mocks.NewHashEmbedder(0), store, logger)
	require.NoError(t, err)

	provider := mocks.NewMockProvider().
		WithRule("Question: latest news", "tavily").
		WithRule("Reply with exactly one word", "kb").
		WithResponse("Attention compares tokens.")
	rsn, err := reasoner.NewReasoner(provider, prompts.NewStore(""), reasoner.Config{PromptVersion: "v2"}, store, logger)
	require.NoError(t, err)

	tool, err := websearch.NewTool(mocks.NewSearchClient(websearch.SearchResult{Content: "Fresh headline."}),
		websearch.Config{}, store, logger)
	require.NoError(t, err)

	p, err := pipeline.New(pipeline.Components{Retriever: retriever, Reasoner: rsn, WebSearch: tool},
		pipeline.Options{Metrics: collector, Logger: logger})
	require.NoError(t, err)

	return &app{
		cfg:       cfg,
		logger:    logger,
		cache:     store,
		metrics:   collector,
		telemetry: &telemetry.Providers{},
		retriever: retriever,
		pipeline:  p,
	}
}

func newTestHandler(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a := newTestApp(t, mutate)
	return NewServer(a, prometheus.NewRegistry()).Handler(ctx)
}

func postQuery(t *testing.T, h http.Handler, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(data))
	r.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		r.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestServerHandler_Health(t *testing.T) {
	h := newTestHandler(t, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cache"`)
}

func TestServerHandler_Query(t *testing.T) {
	h := newTestHandler(t, nil)

	w := postQuery(t, h, map[string]any{"queries": []string{"what is attention?", "latest news"}}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Answers []string                         `json:"answers"`
			Traces  map[string]pipeline.AnswerRecord `json:"traces"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data.Answers, 2)
	assert.Equal(t, "KB", resp.Data.Traces["what is attention?"].ReasoningTrace.Used)
	assert.Equal(t, "Web", resp.Data.Traces["latest news"].ReasoningTrace.Used)
	assert.Equal(t, "Fresh headline.", resp.Data.Traces["latest news"].Answer)
}

func TestServerHandler_QueryValidation(t *testing.T) {
	h := newTestHandler(t, nil)

	w := postQuery(t, h, map[string]any{"queries": "not a list"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Queries must be a list of strings")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServerHandler_APIKeyProtectsQueryOnly(t *testing.T) {
	h := newTestHandler(t, func(c *config.Config) {
		c.Server.APIKeys = []string{"secret-key"}
	})

	w := postQuery(t, h, map[string]any{"queries": []string{"what is attention?"}}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postQuery(t, h, map[string]any{"queries": []string{"what is attention?"}},
		http.Header{"X-Api-Key": []string{"secret-key"}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// localURL 把监听地址 (如 [::]:1234) 转为回环地址 URL
func localURL(t *testing.T, addr string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	return "http://" + net.JoinHostPort("127.0.0.1", port)
}

func TestServer_StartAndWait(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Server.HTTPPort = 0
		c.Server.MetricsPort = 0
	})
	srv := NewServer(a, prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))

	resp, err := http.Get(localURL(t, srv.httpManager.Addr()) + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(localURL(t, srv.metricsManager.Addr()) + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, srv.Wait(ctx))
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/config"
	"github.com/BaSui01/kbroute/internal/cache"
	"github.com/BaSui01/kbroute/internal/metrics"
	"github.com/BaSui01/kbroute/internal/telemetry"
	"github.com/BaSui01/kbroute/internal/tracestore"
	"github.com/BaSui01/kbroute/llm/embedding"
	"github.com/BaSui01/kbroute/llm/providers/openai"
	"github.com/BaSui01/kbroute/llm/retry"
	"github.com/BaSui01/kbroute/llm/tokenizer"
	"github.com/BaSui01/kbroute/pipeline"
	"github.com/BaSui01/kbroute/prompts"
	"github.com/BaSui01/kbroute/rag"
	"github.com/BaSui01/kbroute/rag/loader"
	"github.com/BaSui01/kbroute/reasoner"
	"github.com/BaSui01/kbroute/tools/websearch"
)

// app 持有一次进程生命周期内的全部组件
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	cache     cache.Store
	metrics   *metrics.Collector
	telemetry *telemetry.Providers
	store     *tracestore.Store
	retriever *rag.KnowledgeRetriever
	pipeline  *pipeline.Pipeline
}

// buildApp 按配置构造检索器、推理器、搜索工具与编排器.
// 任何组件构造失败都是致命错误, 已创建的资源会被释放.
func buildApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.close(context.WithoutCancel(ctx))
		}
	}()

	a.metrics = metrics.NewCollector("kbroute", reg, logger)

	a.telemetry, err = telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry, continuing without export", zap.Error(err))
		a.telemetry = &telemetry.Providers{}
		err = nil
	}
	instruments, err := telemetry.NewQueryInstruments(a.telemetry.Meter())
	if err != nil {
		return nil, fmt.Errorf("create query instruments: %w", err)
	}

	a.cache, err = cache.New(cfg.Cache, cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	// ========================================
	// 知识检索器
	// ========================================
	embedder, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Timeout: cfg.Embedding.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.New(cfg.KB.Tokenizer, cfg.Embedding.Model)
	if err != nil {
		return nil, fmt.Errorf("create tokenizer: %w", err)
	}
	a.retriever, err = rag.NewKnowledgeRetriever(ctx, rag.RetrieverConfig{
		DocsPath: cfg.KB.DocsPath,
		Loader:   loader.NewDirectoryLoader(cfg.KB.Glob, logger),
		Chunking: rag.ChunkingConfig{
			ChunkSize:    cfg.KB.ChunkSize,
			ChunkOverlap: cfg.KB.ChunkOverlap,
		},
		Tokenizer:        tok,
		TopK:             cfg.KB.TopK,
		EmbedBatchSize:   cfg.Embedding.BatchSize,
		EmbedConcurrency: cfg.Embedding.Concurrency,
		OnCacheLookup:    a.metrics.RecordCacheLookup,
	}, embedder, a.cache, logger)
	if err != nil {
		return nil, err
	}

	// ========================================
	// 决策推理器
	// ========================================
	provider, err := openai.New(openai.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
		Retry:   retryPolicy(cfg.LLM.MaxRetries),
	}, logger)
	if err != nil {
		return nil, err
	}
	rsn, err := reasoner.NewReasoner(provider, prompts.NewStore(cfg.Prompts.Dir), reasoner.Config{
		PromptVersion:       cfg.Prompts.Version,
		Model:               cfg.LLM.Model,
		DecisionMaxTokens:   cfg.LLM.DecisionMaxTokens,
		GenerationMaxTokens: cfg.LLM.GenerationMaxTokens,
		Temperature:         cfg.LLM.Temperature,
		OnCacheLookup:       a.metrics.RecordCacheLookup,
		OnCompletion:        a.metrics.RecordLLMRequest,
	}, a.cache, logger)
	if err != nil {
		return nil, err
	}

	// ========================================
	// 网络搜索工具
	// ========================================
	client, err := websearch.NewTavilyClient(websearch.TavilyConfig{
		APIKey:      cfg.WebSearch.APIKey,
		BaseURL:     cfg.WebSearch.BaseURL,
		SearchDepth: cfg.WebSearch.SearchDepth,
		Timeout:     cfg.WebSearch.Timeout,
		Retry:       retryPolicy(cfg.WebSearch.MaxRetries),
	}, logger)
	if err != nil {
		return nil, err
	}
	tool, err := websearch.NewTool(client, websearch.Config{
		MaxResults:    cfg.WebSearch.MaxResults,
		SnippetLimit:  cfg.WebSearch.SnippetLimit,
		OnCacheLookup: a.metrics.RecordCacheLookup,
	}, a.cache, logger)
	if err != nil {
		return nil, err
	}

	// ========================================
	// 输出
	// ========================================
	var sinks []pipeline.Sink
	if cfg.Output.TextPath != "" {
		sinks = append(sinks, pipeline.NewTextSink(cfg.Output.TextPath))
	}
	if cfg.Output.JSONPath != "" {
		sinks = append(sinks, pipeline.NewJSONSink(cfg.Output.JSONPath))
	}
	if cfg.Database.Enabled {
		a.store, err = tracestore.Open(ctx, cfg.Database, logger, tracestore.Options{
			OnQuery: a.metrics.RecordDBQuery,
			OnPoolStats: func(database string, stats sql.DBStats) {
				a.metrics.RecordDBConnections(database, stats.OpenConnections, stats.Idle)
			},
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tracestore.NewSink(a.store))
	}

	a.pipeline, err = pipeline.New(pipeline.Components{
		Retriever: a.retriever,
		Reasoner:  rsn,
		WebSearch: tool,
	}, pipeline.Options{
		Concurrency:  cfg.Pipeline.Concurrency,
		DisplayLimit: cfg.Pipeline.DisplayLimit,
		TopK:         cfg.KB.TopK,
		Sinks:        sinks,
		Metrics:      a.metrics,
		Instruments:  instruments,
		Tracer:       a.telemetry.Tracer(),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	stats := a.retriever.Stats()
	logger.Info("pipeline ready",
		zap.Int("documents", stats.Documents),
		zap.Int("chunks", stats.Chunks),
		zap.Duration("index_build", stats.BuildTime),
		zap.String("cache", a.cache.Name()),
		zap.String("prompt_version", rsn.PromptVersion()),
		zap.Bool("trace_store", a.store != nil),
	)
	return a, nil
}

// retryPolicy 以默认退避参数覆盖重试次数
func retryPolicy(maxRetries int) *retry.RetryPolicy {
	p := retry.DefaultRetryPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	return p
}

// close 释放缓存、追踪存储与遥测导出器
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	err := errors.Join(errs...)
	if err != nil {
		a.logger.Warn("shutdown finished with errors", zap.Error(err))
	}
	return err
}

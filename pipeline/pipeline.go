package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/kbroute/internal/metrics"
	"github.com/BaSui01/kbroute/internal/telemetry"
	"github.com/BaSui01/kbroute/rag"
	"github.com/BaSui01/kbroute/reasoner"
	"github.com/BaSui01/kbroute/tools/websearch"
	"github.com/BaSui01/kbroute/types"
)

// Retriever 知识库检索
type Retriever interface {
	GetRelevantDocs(ctx context.Context, query string, topK int) rag.KBContext
}

// Decider 路由决策
type Decider interface {
	DecideAction(ctx context.Context, query string, kb rag.KBContext) reasoner.Decision
}

// Searcher 网络搜索
type Searcher interface {
	Search(ctx context.Context, query string) websearch.Result
}

// Components 编排器依赖的三个组件, 均为必填
type Components struct {
	Retriever Retriever
	Reasoner  Decider
	WebSearch Searcher
}

// Options 编排器选项
type Options struct {
	// 并发处理的查询数, <= 1 表示严格顺序
	Concurrency int
	// 展示副本截断长度, 0 表示默认 500
	DisplayLimit int
	// 检索 top_k, 0 表示检索器默认值
	TopK int
	// 批处理结束后依次写入的输出
	Sinks []Sink
	// 每个查询完成后回调. 并发模式下回调顺序不保证与输入一致.
	OnRecord func(ev RecordEvent)

	Metrics     *metrics.Collector
	Instruments *telemetry.QueryInstruments
	Tracer      trace.Tracer
	Logger      *zap.Logger
}

// RecordEvent 单个查询完成事件
type RecordEvent struct {
	// 输入中的位置, 从 1 开始
	Index int
	Block string
	// 答案不截断的文本块
	FullBlock string
	Record    AnswerRecord
}

type recordHookKey struct{}

// WithRecordHook 为本次 Run 附加一个完成回调, 与 Options.OnRecord 同时生效
func WithRecordHook(ctx context.Context, fn func(ev RecordEvent)) context.Context {
	return context.WithValue(ctx, recordHookKey{}, fn)
}

func recordHook(ctx context.Context) func(ev RecordEvent) {
	fn, _ := ctx.Value(recordHookKey{}).(func(ev RecordEvent))
	return fn
}

// Batch 一次批处理的结果
type Batch struct {
	RunID string
	// 可读文本块, 答案为展示副本
	Answers []string
	// 与 Answers 对应, 答案不截断
	FullAnswers []string
	Traces      *Traces
}

// Records 按输入顺序返回记录
func (b *Batch) Records() []AnswerRecord {
	return b.Traces.Records()
}

// Pipeline 查询编排器
type Pipeline struct {
	retriever Retriever
	reasoner  Decider
	search    Searcher

	opts   Options
	tracer trace.Tracer
	logger *zap.Logger
	now    func() time.Time
}

// errDecisionFailed 决策失败且没有具体错误时使用
var errDecisionFailed = errors.New("routing decision failed")

// New 创建编排器. 缺少任何组件时返回 CONFIG_ERROR.
func New(c Components, opts Options) (*Pipeline, error) {
	switch {
	case c.Retriever == nil:
		return nil, types.NewConfigError("pipeline: knowledge retriever is required")
	case c.Reasoner == nil:
		return nil, types.NewConfigError("pipeline: reasoner is required")
	case c.WebSearch == nil:
		return nil, types.NewConfigError("pipeline: web search tool is required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.DisplayLimit == 0 {
		opts.DisplayLimit = DefaultDisplayLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(telemetry.InstrumentationName)
	}
	return &Pipeline{
		retriever: c.Retriever,
		reasoner:  c.Reasoner,
		search:    c.WebSearch,
		opts:      opts,
		tracer:    tracer,
		logger:    logger.With(zap.String("component", "pipeline")),
		now:       time.Now,
	}, nil
}

// RunQueries 处理一批查询, 返回文本块与按查询索引的记录
func (p *Pipeline) RunQueries(ctx context.Context, queries []string) ([]string, *Traces) {
	b := p.Run(ctx, queries)
	return b.Answers, b.Traces
}

// queryResult 单个查询的产物
type queryResult struct {
	block     string
	fullBlock string
	record    AnswerRecord
}

// Run 处理一批查询并写入所有 Sink.
func (p *Pipeline) Run(ctx context.Context, queries []string) *Batch {
	runID, ok := types.RunID(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = types.WithRunID(ctx, runID)
	}
	batch := &Batch{
		RunID:       runID,
		Answers:     []string{},
		FullAnswers: []string{},
		Traces:      NewTraces(),
	}
	if len(queries) == 0 {
		return batch
	}

	logger := p.logger.With(zap.String("run_id", runID))
	logger.Info("batch started", zap.Int("queries", len(queries)), zap.Int("concurrency", p.opts.Concurrency))
	start := p.now()

	results := p.dispatch(ctx, queries, logger)
	for _, r := range results {
		if r == nil {
			continue
		}
		batch.Answers = append(batch.Answers, r.block)
		batch.FullAnswers = append(batch.FullAnswers, r.fullBlock)
		batch.Traces.Put(r.record)
	}

	logger.Info("batch finished",
		zap.Int("queries", len(queries)),
		zap.Int("succeeded", len(batch.Answers)),
		zap.Duration("elapsed", p.now().Sub(start)))

	p.persist(ctx, batch, logger)
	return batch
}

// dispatch 调度查询. 返回与输入等长的切片, 跳过的位置为 nil.
func (p *Pipeline) dispatch(ctx context.Context, queries []string, logger *zap.Logger) []*queryResult {
	results := make([]*queryResult, len(queries))

	if p.opts.Concurrency == 1 {
		for i, q := range queries {
			if ctx.Err() != nil {
				logger.Warn("batch cancelled", zap.Int("remaining", len(queries)-i), zap.Error(ctx.Err()))
				break
			}
			results[i] = p.handle(ctx, i+1, q, logger)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	var cancelOnce sync.Once
	for i, q := range queries {
		if ctx.Err() != nil {
			remaining := len(queries) - i
			cancelOnce.Do(func() {
				logger.Warn("batch cancelled", zap.Int("remaining", remaining), zap.Error(ctx.Err()))
			})
			break
		}
		g.Go(func() error {
			results[i] = p.handle(ctx, i+1, q, logger)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// handle 执行单个查询并做失败隔离
func (p *Pipeline) handle(ctx context.Context, n int, query string, logger *zap.Logger) *queryResult {
	res, err := p.process(ctx, n, query)
	if err != nil {
		logger.Error("query failed, skipping",
			zap.Int("index", n),
			zap.String("query", query),
			zap.Error(err))
		if p.opts.Metrics != nil {
			p.opts.Metrics.RecordQuery("", "skipped", 0)
		}
		p.opts.Instruments.Record(ctx, "", "skipped", 0)
		return nil
	}
	ev := RecordEvent{Index: n, Block: res.block, FullBlock: res.fullBlock, Record: res.record}
	if p.opts.OnRecord != nil {
		p.opts.OnRecord(ev)
	}
	if hook := recordHook(ctx); hook != nil {
		hook(ev)
	}
	return res
}

// process 单个查询的事务. panic 转换为错误.
func (p *Pipeline) process(ctx context.Context, n int, query string) (res *queryResult, err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.query", trace.WithAttributes(attribute.Int("query.index", n)))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := p.now()

	kb := p.retriever.GetRelevantDocs(ctx, query, p.opts.TopK)
	if kb.Degraded {
		span.AddEvent("retrieval degraded")
	}

	decision := p.reasoner.DecideAction(ctx, query, kb)
	if decision.Failed {
		if decision.Err != nil {
			return nil, fmt.Errorf("%w: %w", errDecisionFailed, decision.Err)
		}
		return nil, errDecisionFailed
	}

	var (
		answer      string
		toolLatency *float64
	)
	if decision.Route == reasoner.UseWeb {
		toolStart := p.now()
		result := p.search.Search(ctx, query)
		elapsed := p.now().Sub(toolStart)
		seconds := elapsed.Seconds()
		toolLatency = &seconds
		answer = result.Text
		span.SetAttributes(attribute.String("tool.result", string(result.Kind)))
		if p.opts.Metrics != nil {
			p.opts.Metrics.RecordWebSearch(string(result.Kind), elapsed)
		}
	} else {
		answer = decision.Answer
		if answer == "" {
			answer = reasoner.NoKBInfoAnswer
		}
	}

	source := decision.Route.Source()
	elapsed := p.now().Sub(start)
	latency := elapsed.Seconds()

	rec := AnswerRecord{
		Query:  query,
		Answer: answer,
		ReasoningTrace: ReasoningTrace{
			PromptVersion: decision.Trace.PromptVersion,
			Used:          source,
			DecisionText:  decision.Trace.DecisionText,
		},
		Latency:     latency,
		ToolLatency: toolLatency,
	}

	span.SetAttributes(
		attribute.String("route", source),
		attribute.Float64("latency_s", latency),
	)
	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordQuery(source, "ok", elapsed)
	}
	p.opts.Instruments.Record(ctx, source, "ok", elapsed)

	return &queryResult{
		block:     FormatBlock(n, query, Truncate(answer, p.opts.DisplayLimit), source, latency),
		fullBlock: FormatBlock(n, query, answer, source, latency),
		record:    rec,
	}, nil
}

// persist 依次写入 Sink, 失败只记录警告
func (p *Pipeline) persist(ctx context.Context, batch *Batch, logger *zap.Logger) {
	for _, sink := range p.opts.Sinks {
		if err := sink.Write(ctx, batch); err != nil {
			logger.Warn("persist batch failed", zap.String("sink", sink.Name()), zap.Error(err))
			continue
		}
		logger.Debug("batch persisted", zap.String("sink", sink.Name()))
	}
}

package reasoner

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/internal/cache"
	"github.com/BaSui01/kbroute/llm"
	"github.com/BaSui01/kbroute/prompts"
	"github.com/BaSui01/kbroute/rag"
	"github.com/BaSui01/kbroute/types"
)

// 固定文本
const (
	NoKBContextText      = "No KB context available."
	NoKBInfoAnswer       = "No relevant KB info available."
	GenerationFailedText = "Sorry, I could not generate an answer at this time."
)

const (
	DefaultModel               = "gpt-4o-mini"
	DefaultDecisionMaxTokens   = 20
	DefaultGenerationMaxTokens = 250
)

// LLM call kinds reported to OnCompletion.
const (
	CallDecision   = "decision"
	CallGeneration = "generation"
)

// Config 推理器配置
type Config struct {
	// 生成模板版本: v1, v2
	PromptVersion string
	Model         string

	DecisionMaxTokens   int
	GenerationMaxTokens int
	Temperature         float64

	// 每次缓存查询后回调, 可为空
	OnCacheLookup func(cache string, hit bool)
	// 每次 LLM 调用结束后回调, 可为空
	OnCompletion func(call string, latency time.Duration, err error)
}

// Trace 决策轨迹
type Trace struct {
	PromptVersion string `json:"prompt_version"`
	SourceUsed    string `json:"used"`
	DecisionText  string `json:"decision_text"`
}

// Decision DecideAction 的结果.
//
// Failed 为 true 时决策调用失败, Trace 为空, 调用方应跳过该查询.
// 走 KB 路由时 Answer 为生成结果; 走 Web 路由时 Answer 为空, 由搜索工具给出.
type Decision struct {
	Route      RoutingDecision
	Answer     string
	Generation *Generation
	Trace      Trace
	Failed     bool
	Err        error
}

// Outcome 生成结果类别
type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeCached    Outcome = "cached"
	OutcomeFailed    Outcome = "failed"
)

// Generation Reason 的结果. 失败时 Text 为 GenerationFailedText.
type Generation struct {
	Text    string
	Outcome Outcome
	Err     error
}

// Reasoner 决策推理器
type Reasoner struct {
	provider    llm.Provider
	prompts     *prompts.Store
	genTemplate string
	cfg         Config
	memo        *cache.Memo[string]
	logger      *zap.Logger
}

// NewReasoner 创建推理器. 提示词版本不支持时返回 CONFIG_ERROR,
// 模板缺失或格式错误时返回 TEMPLATE_ERROR.
func NewReasoner(provider llm.Provider, store *prompts.Store, cfg Config, cacheStore cache.Store, logger *zap.Logger) (*Reasoner, error) {
	if provider == nil {
		return nil, types.NewError(types.ErrMissingCredential, "llm provider is not configured")
	}
	if store == nil {
		store = prompts.NewStore("")
	}
	genTemplate, err := prompts.GenerationTemplate(cfg.PromptVersion)
	if err != nil {
		return nil, err
	}
	// 构造时加载两个模板, 让坏模板在处理任何查询之前暴露
	for _, name := range []string{prompts.DecideAction, genTemplate} {
		if _, err := store.Load(name); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheStore == nil {
		cacheStore = cache.NewMapStore()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.DecisionMaxTokens <= 0 {
		cfg.DecisionMaxTokens = DefaultDecisionMaxTokens
	}
	if cfg.GenerationMaxTokens <= 0 {
		cfg.GenerationMaxTokens = DefaultGenerationMaxTokens
	}
	logger = logger.With(zap.String("component", "reasoner"), zap.String("prompt_version", cfg.PromptVersion))

	r := &Reasoner{
		provider:    provider,
		prompts:     store,
		genTemplate: genTemplate,
		cfg:         cfg,
		memo:        cache.NewMemo[string](cacheStore, "generation", logger),
		logger:      logger,
	}
	r.memo.OnLookup = cfg.OnCacheLookup
	return r, nil
}

// PromptVersion 返回生成模板版本
func (r *Reasoner) PromptVersion() string { return r.cfg.PromptVersion }

// DecideAction 对查询做路由决策, KB 路由时同时生成答案.
func (r *Reasoner) DecideAction(ctx context.Context, query string, kb rag.KBContext) Decision {
	contextText := kb.Summary
	promptContext := contextText
	if strings.TrimSpace(promptContext) == "" {
		promptContext = NoKBContextText
	}

	raw, err := r.complete(ctx, CallDecision, prompts.DecideAction, query, promptContext, r.cfg.DecisionMaxTokens)
	if err != nil {
		r.logger.Error("routing decision failed", zap.String("query", query), zap.Error(err))
		return Decision{Failed: true, Err: err}
	}

	decisionText := strings.ToLower(strings.TrimSpace(raw))
	route := Classify(decisionText)
	d := Decision{
		Route: route,
		Trace: Trace{
			PromptVersion: r.cfg.PromptVersion,
			SourceUsed:    route.Source(),
			DecisionText:  decisionText,
		},
	}
	r.logger.Debug("routing decided",
		zap.String("query", query),
		zap.String("route", string(route)),
		zap.String("decision_text", decisionText))

	if route == UseWeb {
		return d
	}
	if strings.TrimSpace(contextText) == "" {
		d.Answer = NoKBInfoAnswer
		return d
	}
	gen := r.Reason(ctx, query, contextText)
	d.Answer = gen.Text
	d.Generation = &gen
	return d
}

// Reason 基于 context 生成答案. 成功结果按 (query, context) 精确缓存;
// 失败不缓存, 返回固定失败文本.
func (r *Reasoner) Reason(ctx context.Context, query, contextText string) Generation {
	key := cache.HashKey("gen:", query, contextText)
	text, hit, err := r.memo.Do(ctx, key, func(ctx context.Context) (string, bool, error) {
		out, err := r.complete(ctx, CallGeneration, r.genTemplate, query, contextText, r.cfg.GenerationMaxTokens)
		if err != nil {
			return "", false, err
		}
		return strings.TrimSpace(out), true, nil
	})
	if err != nil {
		r.logger.Warn("generation failed", zap.String("query", query), zap.Error(err))
		return Generation{Text: GenerationFailedText, Outcome: OutcomeFailed, Err: err}
	}
	if hit {
		return Generation{Text: text, Outcome: OutcomeCached}
	}
	return Generation{Text: text, Outcome: OutcomeGenerated}
}

func (r *Reasoner) complete(ctx context.Context, call, template, query, contextText string, maxTokens int) (string, error) {
	prompt, err := r.prompts.Render(template, map[string]string{
		prompts.VarQuery:   query,
		prompts.VarContext: contextText,
	})
	if err != nil {
		return "", err
	}
	req := llm.UserPrompt(r.cfg.Model, prompt, maxTokens)
	req.Temperature = float32(r.cfg.Temperature)
	if id, ok := types.RunID(ctx); ok {
		req.TraceID = id
	}

	start := time.Now()
	resp, err := r.provider.Completion(ctx, req)
	if err == nil {
		var text string
		text, err = resp.Text()
		r.observe(call, time.Since(start), err)
		return text, err
	}
	r.observe(call, time.Since(start), err)
	return "", err
}

func (r *Reasoner) observe(call string, latency time.Duration, err error) {
	if r.cfg.OnCompletion != nil {
		r.cfg.OnCompletion(call, latency, err)
	}
}

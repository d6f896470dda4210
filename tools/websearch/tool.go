package websearch

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/internal/cache"
	"github.com/BaSui01/kbroute/types"
)

// 固定提示文本
const (
	NoResultsText   = "No relevant web results found."
	ToolErrorPrefix = "Tavily API error: "
)

const (
	DefaultMaxResults   = 3
	DefaultSnippetLimit = 500
)

// ResultKind 搜索结果类别
type ResultKind string

const (
	KindSnippets  ResultKind = "snippets"
	KindNoResults ResultKind = "no_results"
	KindToolError ResultKind = "tool_error"
)

// Result 工具输出. Text 总是可直接展示的字符串.
type Result struct {
	Text string     `json:"text"`
	Kind ResultKind `json:"kind"`
}

// Config 工具配置
type Config struct {
	// 每次搜索请求的结果数
	MaxResults int
	// 片段拼接后的最大字符数（rune）
	SnippetLimit int
	// 每次缓存查询后回调, 可为空
	OnCacheLookup func(cache string, hit bool)
}

// Tool 网络搜索工具
type Tool struct {
	client Client
	cfg    Config
	memo   *cache.Memo[Result]
	logger *zap.Logger
}

// NewTool 创建工具. client 为空表示没有可用的搜索凭据.
func NewTool(client Client, cfg Config, store cache.Store, logger *zap.Logger) (*Tool, error) {
	if client == nil {
		return nil, types.NewError(types.ErrMissingCredential, "web search client is not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = cache.NewMapStore()
	}
	if cfg.MaxResults < 1 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.SnippetLimit < 1 {
		cfg.SnippetLimit = DefaultSnippetLimit
	}
	logger = logger.With(zap.String("component", "web_search_tool"))

	t := &Tool{
		client: client,
		cfg:    cfg,
		memo:   cache.NewMemo[Result](store, "websearch", logger),
		logger: logger,
	}
	t.memo.OnLookup = cfg.OnCacheLookup
	return t, nil
}

// Search 返回查询的网络片段. 结果按查询精确缓存, 包括无结果与错误文本.
// 调用方 ctx 结束时返回错误文本, 不影响同一查询的其他调用方.
func (t *Tool) Search(ctx context.Context, query string) Result {
	res, _, err := t.memo.Do(ctx, cache.HashKey("web:", query), func(ctx context.Context) (Result, bool, error) {
		results, err := t.client.Search(ctx, query, t.cfg.MaxResults)
		if err != nil {
			t.logger.Warn("web search failed", zap.String("query", query), zap.Error(err))
			return Result{Text: ToolErrorPrefix + err.Error(), Kind: KindToolError}, ctx.Err() == nil, nil
		}
		if len(results) == 0 {
			return Result{Text: NoResultsText, Kind: KindNoResults}, true, nil
		}
		return Result{Text: t.joinSnippets(results), Kind: KindSnippets}, true, nil
	})
	if err != nil {
		// 只有本调用方的 context 结束会走到这里, 共享的搜索仍会完成并写入缓存
		return Result{Text: ToolErrorPrefix + err.Error(), Kind: KindToolError}
	}
	return res
}

func (t *Tool) joinSnippets(results []SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
	}
	return types.TruncateRunes(strings.Join(parts, " "), t.cfg.SnippetLimit)
}

package handlers

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/pipeline"
	"github.com/BaSui01/kbroute/rag"
	"github.com/BaSui01/kbroute/reasoner"
	"github.com/BaSui01/kbroute/tools/websearch"
)

type stubRetriever struct{}

func (stubRetriever) GetRelevantDocs(ctx context.Context, query string, topK int) rag.KBContext {
	return rag.KBContext{Summary: "kb about " + query}
}

// stubDecider 查询包含 "news" 时走 Web，包含 "broken" 时决策失败
type stubDecider struct{}

func (stubDecider) DecideAction(ctx context.Context, query string, kb rag.KBContext) reasoner.Decision {
	if strings.Contains(query, "broken") {
		return reasoner.Decision{Failed: true}
	}
	if strings.Contains(query, "news") {
		return reasoner.Decision{
			Route: reasoner.UseWeb,
			Trace: reasoner.Trace{PromptVersion: "v1", SourceUsed: reasoner.SourceWeb, DecisionText: "tavily"},
		}
	}
	return reasoner.Decision{
		Route:  reasoner.UseKB,
		Answer: "kb answer for " + query + strings.Repeat("!", 20),
		Trace:  reasoner.Trace{PromptVersion: "v1", SourceUsed: reasoner.SourceKB, DecisionText: "kb"},
	}
}

type stubSearcher struct{}

func (stubSearcher) Search(ctx context.Context, query string) websearch.Result {
	return websearch.Result{Text: "snippet for " + query, Kind: websearch.KindSnippets}
}

// recordingRunner 包装真实管道并记录收到的查询
type recordingRunner struct {
	inner *pipeline.Pipeline
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingRunner) Run(ctx context.Context, queries []string) *pipeline.Batch {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), queries...))
	r.mu.Unlock()
	return r.inner.Run(ctx, queries)
}

func (r *recordingRunner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

// newRunner 展示截断长度为 30，便于区分 truncate 开关
func newRunner(t *testing.T) *recordingRunner {
	t.Helper()
	p, err := pipeline.New(
		pipeline.Components{Retriever: stubRetriever{}, Reasoner: stubDecider{}, WebSearch: stubSearcher{}},
		pipeline.Options{DisplayLimit: 30, Logger: zap.NewNop()},
	)
	require.NoError(t, err)
	return &recordingRunner{inner: p}
}

package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/kbroute/rag"
	"github.com/BaSui01/kbroute/reasoner"
	"github.com/BaSui01/kbroute/tools/websearch"
)

type fakeRetriever struct {
	mu        sync.Mutex
	calls     []string
	summaries map[string]string
	panicOn   string
	delay     func(query string) time.Duration
}

func (f *fakeRetriever) GetRelevantDocs(ctx context.Context, query string, topK int) rag.KBContext {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	f.mu.Unlock()
	if f.delay != nil {
		time.Sleep(f.delay(query))
	}
	if query == f.panicOn {
		panic("index exploded")
	}
	return rag.KBContext{Summary: f.summaries[query]}
}

func (f *fakeRetriever) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeDecider 按查询返回预设路由. KB 路由的答案为 "answer:<query>".
type fakeDecider struct {
	web     map[string]bool
	fail    map[string]bool
	answers map[string]string
}

func (f *fakeDecider) DecideAction(ctx context.Context, query string, kb rag.KBContext) reasoner.Decision {
	if f.fail[query] {
		return reasoner.Decision{Failed: true, Err: errors.New("llm unavailable")}
	}
	route := reasoner.UseKB
	raw := "kb"
	if f.web[query] {
		route = reasoner.UseWeb
		raw = "tavily"
	}
	d := reasoner.Decision{
		Route: route,
		Trace: reasoner.Trace{PromptVersion: "v2", SourceUsed: route.Source(), DecisionText: raw},
	}
	if route == reasoner.UseKB {
		if a, ok := f.answers[query]; ok {
			d.Answer = a
		} else {
			d.Answer = "answer:" + query
		}
	}
	return d
}

type fakeSearcher struct {
	mu    sync.Mutex
	calls int
	kind  websearch.ResultKind
}

func (f *fakeSearcher) Search(ctx context.Context, query string) websearch.Result {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	kind := f.kind
	if kind == "" {
		kind = websearch.KindSnippets
	}
	return websearch.Result{Text: "web:" + query, Kind: kind}
}

func (f *fakeSearcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stepClock 每次调用前进 step
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

type recordingSink struct {
	name    string
	err     error
	batches []*Batch
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(ctx context.Context, b *Batch) error {
	s.batches = append(s.batches, b)
	return s.err
}

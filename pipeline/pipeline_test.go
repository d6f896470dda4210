package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/kbroute/internal/metrics"
	"github.com/BaSui01/kbroute/types"
)

type harness struct {
	retriever *fakeRetriever
	decider   *fakeDecider
	searcher  *fakeSearcher
	pipeline  *Pipeline
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		retriever: &fakeRetriever{summaries: map[string]string{}},
		decider:   &fakeDecider{web: map[string]bool{}, fail: map[string]bool{}, answers: map[string]string{}},
		searcher:  &fakeSearcher{},
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	p, err := New(Components{Retriever: h.retriever, Reasoner: h.decider, WebSearch: h.searcher}, opts)
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func TestNew_RequiresComponents(t *testing.T) {
	r, d, s := &fakeRetriever{}, &fakeDecider{}, &fakeSearcher{}
	cases := []Components{
		{Reasoner: d, WebSearch: s},
		{Retriever: r, WebSearch: s},
		{Retriever: r, Reasoner: d},
	}
	for i, c := range cases {
		_, err := New(c, Options{})
		assert.True(t, types.IsErrorCode(err, types.ErrConfig), "case %d", i)
	}
}

func TestRunQueries_Empty(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	h := newHarness(t, Options{Sinks: []Sink{sink}})

	answers, traces := h.pipeline.RunQueries(context.Background(), nil)

	assert.Empty(t, answers)
	assert.NotNil(t, answers)
	assert.Equal(t, 0, traces.Len())
	assert.Empty(t, h.retriever.Calls())
	assert.Equal(t, 0, h.searcher.Calls())
	assert.Empty(t, sink.batches)
}

func TestRunQueries_KBAndWebRecords(t *testing.T) {
	h := newHarness(t, Options{})
	h.pipeline.now = newStepClock(time.Second).Now
	h.decider.web["latest news"] = true

	answers, traces := h.pipeline.RunQueries(context.Background(), []string{"what is go?", "latest news"})

	require.Len(t, answers, 2)
	assert.Equal(t, "--- Query 1: what is go? ---\nAnswer: answer:what is go?\n(used: KB, latency: 1.00s)\n", answers[0])
	assert.Equal(t, "--- Query 2: latest news ---\nAnswer: web:latest news\n(used: Web, latency: 3.00s)\n", answers[1])

	kb, ok := traces.Get("what is go?")
	require.True(t, ok)
	assert.Equal(t, "KB", kb.SourceUsed())
	assert.Nil(t, kb.ToolLatency)
	assert.Equal(t, ReasoningTrace{PromptVersion: "v2", Used: "KB", DecisionText: "kb"}, kb.ReasoningTrace)
	assert.InDelta(t, 1.0, kb.Latency, 1e-9)

	web, ok := traces.Get("latest news")
	require.True(t, ok)
	assert.Equal(t, "Web", web.SourceUsed())
	require.NotNil(t, web.ToolLatency)
	assert.InDelta(t, 1.0, *web.ToolLatency, 1e-9)
	assert.InDelta(t, 3.0, web.Latency, 1e-9)
	assert.Equal(t, "web:latest news", web.Answer)
	assert.Equal(t, 1, h.searcher.Calls())
}

func TestRunQueries_EmptyKBAnswerUsesSentinel(t *testing.T) {
	h := newHarness(t, Options{})
	h.decider.answers["q"] = ""

	_, traces := h.pipeline.RunQueries(context.Background(), []string{"q"})
	rec, ok := traces.Get("q")
	require.True(t, ok)
	assert.Equal(t, "No relevant KB info available.", rec.Answer)
}

func TestRunQueries_FailingQueryIsSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := newHarness(t, Options{Logger: zap.New(core)})
	h.retriever.panicOn = "bad"

	answers, traces := h.pipeline.RunQueries(context.Background(), []string{"first", "bad", "third"})

	require.Len(t, answers, 2)
	assert.True(t, strings.HasPrefix(answers[0], "--- Query 1: first ---"))
	assert.True(t, strings.HasPrefix(answers[1], "--- Query 3: third ---"))
	assert.Equal(t, []string{"first", "third"}, traces.Queries())
	_, ok := traces.Get("bad")
	assert.False(t, ok)

	entries := logs.FilterMessage("query failed, skipping").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bad", entries[0].ContextMap()["query"])
	assert.Contains(t, entries[0].ContextMap()["error"], "index exploded")
}

func TestRunQueries_DecisionFailureIsSkipped(t *testing.T) {
	h := newHarness(t, Options{})
	h.decider.fail["b"] = true
	h.decider.web["b"] = true

	answers, traces := h.pipeline.RunQueries(context.Background(), []string{"a", "b", "c"})

	assert.Len(t, answers, 2)
	assert.Equal(t, []string{"a", "c"}, traces.Queries())
	assert.Equal(t, 0, h.searcher.Calls(), "skipped query must not reach the tool")
}

func TestRunQueries_StoredAnswerIsNotTruncated(t *testing.T) {
	h := newHarness(t, Options{})
	long := strings.Repeat("界", 650)
	h.decider.answers["long"] = long

	b := h.pipeline.Run(context.Background(), []string{"long"})

	rec, _ := b.Traces.Get("long")
	assert.Equal(t, long, rec.Answer)
	assert.Contains(t, b.Answers[0], "Answer: "+strings.Repeat("界", 500)+"...\n")
	assert.NotContains(t, b.Answers[0], strings.Repeat("界", 501))
	assert.Contains(t, b.FullAnswers[0], "Answer: "+long+"\n")
}

func TestRunQueries_DisplayLimitOption(t *testing.T) {
	h := newHarness(t, Options{DisplayLimit: 5})
	h.decider.answers["q"] = "abcdefgh"

	answers, traces := h.pipeline.RunQueries(context.Background(), []string{"q"})
	assert.Contains(t, answers[0], "Answer: abcde...\n")
	rec, _ := traces.Get("q")
	assert.Equal(t, "abcdefgh", rec.Answer)
}

func TestRunQueries_RepeatedQueryKeepsFirstPosition(t *testing.T) {
	h := newHarness(t, Options{})

	answers, traces := h.pipeline.RunQueries(context.Background(), []string{"a", "b", "a"})

	assert.Len(t, answers, 3)
	assert.Equal(t, 2, traces.Len())
	assert.Equal(t, []string{"a", "b"}, traces.Queries())
	assert.Equal(t, []string{"a", "b", "a"}, h.retriever.Calls())
}

func TestRunQueries_ConcurrentPreservesOrder(t *testing.T) {
	h := newHarness(t, Options{Concurrency: 4})
	h.retriever.delay = func(q string) time.Duration {
		// 靠前的查询更慢, 让完成顺序与输入顺序相反
		var n int
		fmt.Sscanf(q, "q%d", &n)
		return time.Duration(20-n) * time.Millisecond
	}
	h.retriever.panicOn = "q7"

	var queries []string
	for i := 0; i < 20; i++ {
		queries = append(queries, fmt.Sprintf("q%d", i))
	}
	answers, traces := h.pipeline.RunQueries(context.Background(), queries)

	require.Len(t, answers, 19)
	var want []string
	for _, q := range queries {
		if q != "q7" {
			want = append(want, q)
		}
	}
	assert.Equal(t, want, traces.Queries())
	for i, q := range want {
		assert.Contains(t, answers[i], ": "+q+" ---")
	}
}

func TestRunQueries_CancelledContext(t *testing.T) {
	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	answers, traces := h.pipeline.RunQueries(ctx, []string{"a", "b"})
	assert.Empty(t, answers)
	assert.Equal(t, 0, traces.Len())
	assert.Empty(t, h.retriever.Calls())
}

func TestRunQueries_CancelMidBatchKeepsCompleted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, Options{OnRecord: func(ev RecordEvent) {
		if ev.Index == 2 {
			cancel()
		}
	}})

	answers, traces := h.pipeline.RunQueries(ctx, []string{"a", "b", "c", "d"})
	assert.Len(t, answers, 2)
	assert.Equal(t, []string{"a", "b"}, traces.Queries())
}

func TestRunQueries_OnRecord(t *testing.T) {
	var events []RecordEvent
	h := newHarness(t, Options{OnRecord: func(ev RecordEvent) { events = append(events, ev) }})
	h.decider.fail["b"] = true

	h.pipeline.RunQueries(context.Background(), []string{"a", "b", "c"})

	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Index)
	assert.Equal(t, "a", events[0].Record.Query)
	assert.Equal(t, 3, events[1].Index)
	assert.True(t, strings.HasPrefix(events[1].Block, "--- Query 3: c ---"))
}

func TestRun_RecordHookFromContext(t *testing.T) {
	var fromOpts, fromCtx []int
	h := newHarness(t, Options{OnRecord: func(ev RecordEvent) { fromOpts = append(fromOpts, ev.Index) }})

	ctx := WithRecordHook(context.Background(), func(ev RecordEvent) {
		fromCtx = append(fromCtx, ev.Index)
		assert.NotEmpty(t, ev.FullBlock)
	})
	h.pipeline.Run(ctx, []string{"a", "b"})
	h.pipeline.Run(context.Background(), []string{"c"})

	assert.Equal(t, []int{1, 2, 1}, fromOpts)
	assert.Equal(t, []int{1, 2}, fromCtx)
}

func TestRun_RunIDFromContext(t *testing.T) {
	h := newHarness(t, Options{})

	b := h.pipeline.Run(types.WithRunID(context.Background(), "run-42"), []string{"a"})
	assert.Equal(t, "run-42", b.RunID)

	b = h.pipeline.Run(context.Background(), []string{"a"})
	assert.Len(t, b.RunID, 36)
}

func TestRun_SinkFailureIsOnlyLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	failing := &recordingSink{name: "failing", err: errors.New("disk full")}
	ok := &recordingSink{name: "ok"}
	h := newHarness(t, Options{Sinks: []Sink{failing, ok}, Logger: zap.New(core)})

	b := h.pipeline.Run(context.Background(), []string{"a"})

	assert.Len(t, b.Answers, 1)
	require.Len(t, ok.batches, 1)
	assert.Same(t, b, ok.batches[0])
	entries := logs.FilterMessage("persist batch failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "failing", entries[0].ContextMap()["sink"])
}

func TestRun_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h := newHarness(t, Options{Tracer: tp.Tracer("test")})
	h.decider.web["w"] = true
	h.decider.fail["f"] = true

	h.pipeline.Run(context.Background(), []string{"k", "w", "f"})

	spans := sr.Ended()
	require.Len(t, spans, 3)
	routes := map[int64]string{}
	for _, s := range spans {
		assert.Equal(t, "pipeline.query", s.Name())
		attrs := map[attribute.Key]attribute.Value{}
		for _, kv := range s.Attributes() {
			attrs[kv.Key] = kv.Value
		}
		idx := attrs["query.index"].AsInt64()
		if route, ok := attrs["route"]; ok {
			routes[idx] = route.AsString()
		}
		if idx == 3 {
			assert.Equal(t, codes.Error, s.Status().Code)
		}
	}
	assert.Equal(t, map[int64]string{1: "KB", 2: "Web"}, routes)
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("kbroute", reg, nil)
	h := newHarness(t, Options{Metrics: collector})
	h.decider.web["w"] = true
	h.decider.fail["f"] = true

	h.pipeline.Run(context.Background(), []string{"k", "w", "f"})

	expected := `
# HELP kbroute_pipeline_queries_total Total number of queries processed, by route and outcome
# TYPE kbroute_pipeline_queries_total counter
kbroute_pipeline_queries_total{outcome="ok",route="KB"} 1
kbroute_pipeline_queries_total{outcome="ok",route="Web"} 1
kbroute_pipeline_queries_total{outcome="skipped",route="none"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "kbroute_pipeline_queries_total"))
	n, err := testutil.GatherAndCount(reg, "kbroute_web_search_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/api"
	"github.com/BaSui01/kbroute/internal/metrics"
	"github.com/BaSui01/kbroute/pipeline"
	"github.com/BaSui01/kbroute/types"
)

const (
	errQueriesShape = "Queries must be a list of strings"
	errNoPayload    = "No JSON payload received"
)

// Runner 执行一批查询并写入配置的 Sink
type Runner interface {
	Run(ctx context.Context, queries []string) *pipeline.Batch
}

// QueryHandlerConfig 查询处理器配置
type QueryHandlerConfig struct {
	// 单次请求最多处理的查询数，超出部分被丢弃；<= 0 不限制
	MaxQueries int
	// websocket 允许的 Origin，包含 "*" 时不校验
	AllowedOrigins []string
	// 等待 websocket 首条消息的超时
	StreamReadTimeout time.Duration
	Metrics           *metrics.Collector
}

// QueryHandler /query 与 /query/stream
type QueryHandler struct {
	runner Runner
	cfg    QueryHandlerConfig
	logger *zap.Logger
}

// NewQueryHandler 创建查询处理器
func NewQueryHandler(runner Runner, cfg QueryHandlerConfig, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StreamReadTimeout <= 0 {
		cfg.StreamReadTimeout = 30 * time.Second
	}
	return &QueryHandler{
		runner: runner,
		cfg:    cfg,
		logger: logger.With(zap.String("handler", "query")),
	}
}

// decodeQueryRequest 把请求体解码为 QueryRequest.
// null、{}、[]、""、0、false 都视为没有负载.
func decodeQueryRequest(data json.RawMessage) (api.QueryRequest, *types.Error) {
	var req api.QueryRequest
	if emptyPayload(data) {
		return req, types.NewError(types.ErrInvalidRequest, errNoPayload).WithHTTPStatus(http.StatusBadRequest)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, types.NewError(types.ErrInvalidRequest, errQueriesShape).WithCause(err).WithHTTPStatus(http.StatusBadRequest)
	}
	return req, nil
}

func emptyPayload(data json.RawMessage) bool {
	var v any
	if len(data) == 0 || json.Unmarshal(data, &v) != nil {
		return len(data) == 0
	}
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// parseQueryRequest 校验并返回截取后的查询列表与是否截断答案
func parseQueryRequest(req api.QueryRequest, maxQueries int) ([]string, bool, *types.Error) {
	invalid := types.NewError(types.ErrInvalidRequest, errQueriesShape).WithHTTPStatus(http.StatusBadRequest)

	var items []any
	if len(req.Queries) == 0 || json.Unmarshal(req.Queries, &items) != nil || len(items) == 0 {
		return nil, false, invalid
	}
	queries := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false, invalid
		}
		queries = append(queries, s)
	}
	if maxQueries > 0 && len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}

	truncate := true
	if req.Truncate != nil {
		truncate = *req.Truncate
	}
	return queries, truncate, nil
}

// =============================================================================
// POST /query
// =============================================================================

// HandleQuery 运行一批查询，返回文本块与按查询索引的轨迹
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}
	req, apiErr := decodeQueryRequest(body)
	if apiErr != nil {
		WriteError(w, r, apiErr, h.logger)
		return
	}
	queries, truncate, apiErr := parseQueryRequest(req, h.cfg.MaxQueries)
	if apiErr != nil {
		WriteError(w, r, apiErr, h.logger)
		return
	}

	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RecordBatch("http")
	}
	batch := h.runner.Run(r.Context(), queries)

	answers := batch.Answers
	if !truncate {
		answers = batch.FullAnswers
	}
	WriteSuccess(w, r, api.QueryResponse{Answers: answers, Traces: batch.Traces})
}

// =============================================================================
// GET /query/stream (websocket)
// =============================================================================

// HandleStream 读取一条 {queries, truncate} 消息，每完成一个查询推送一条 record，最后推送 done
func (h *QueryHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if slices.Contains(h.cfg.AllowedOrigins, "*") {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.cfg.AllowedOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 自己解码: wsjson.Read 在解码失败时会直接关闭连接, 错误消息就发不出去了
	readCtx, cancel := context.WithTimeout(r.Context(), h.cfg.StreamReadTimeout)
	_, data, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		h.logger.Debug("websocket read failed", zap.Error(err))
		return
	}
	if !json.Valid(data) {
		h.logger.Debug("websocket message is not JSON")
		h.writeStreamError(r.Context(), conn, types.NewError(types.ErrInvalidRequest, "invalid JSON message"))
		return
	}
	req, apiErr := decodeQueryRequest(data)
	if apiErr != nil {
		h.writeStreamError(r.Context(), conn, apiErr)
		return
	}

	queries, truncate, apiErr := parseQueryRequest(req, h.cfg.MaxQueries)
	if apiErr != nil {
		h.writeStreamError(r.Context(), conn, apiErr)
		return
	}

	// 客户端断开时取消剩余查询
	ctx := conn.CloseRead(r.Context())
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RecordBatch("ws")
	}

	hook := func(ev pipeline.RecordEvent) {
		block := ev.Block
		if !truncate {
			block = ev.FullBlock
		}
		rec := ev.Record
		msg := api.StreamMessage{Type: api.StreamRecord, Index: ev.Index, Block: block, Record: &rec}
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			h.logger.Debug("websocket write failed", zap.Int("index", ev.Index), zap.Error(err))
		}
	}
	batch := h.runner.Run(pipeline.WithRecordHook(ctx, hook), queries)

	done := api.StreamMessage{Type: api.StreamDone, RunID: batch.RunID, Count: len(batch.Answers)}
	if err := wsjson.Write(ctx, conn, done); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *QueryHandler) writeStreamError(ctx context.Context, conn *websocket.Conn, err *types.Error) {
	msg := api.StreamMessage{
		Type:  api.StreamTypeError,
		Error: &api.StreamError{Code: string(err.Code), Message: err.Message},
	}
	if werr := wsjson.Write(ctx, conn, msg); werr != nil {
		return
	}
	conn.Close(websocket.StatusPolicyViolation, err.Message)
}

package tracestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BaSui01/kbroute/config"
	"github.com/BaSui01/kbroute/internal/database"
	"github.com/BaSui01/kbroute/pipeline"
	"github.com/BaSui01/kbroute/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Row answer_records 表的一行
type Row struct {
	ID                 uint64    `gorm:"primaryKey;autoIncrement"`
	RunID              string    `gorm:"column:run_id;size:64;not null;index:idx_answer_records_run_id"`
	Position           int       `gorm:"column:position;not null"`
	Query              string    `gorm:"column:query;type:text;not null"`
	Answer             string    `gorm:"column:answer;type:text;not null"`
	SourceUsed         string    `gorm:"column:source_used;size:16;not null"`
	DecisionText       string    `gorm:"column:decision_text;type:text;not null"`
	PromptVersion      string    `gorm:"column:prompt_version;size:16;not null"`
	LatencySeconds     float64   `gorm:"column:latency_seconds;not null"`
	ToolLatencySeconds *float64  `gorm:"column:tool_latency_seconds"`
	CreatedAt          time.Time `gorm:"column:created_at"`
}

// TableName 固定表名，与 internal/migration 的迁移文件一致
func (Row) TableName() string { return "answer_records" }

// Record 转回管道记录
func (r Row) Record() pipeline.AnswerRecord {
	return pipeline.AnswerRecord{
		Query:  r.Query,
		Answer: r.Answer,
		ReasoningTrace: pipeline.ReasoningTrace{
			PromptVersion: r.PromptVersion,
			Used:          r.SourceUsed,
			DecisionText:  r.DecisionText,
		},
		Latency:     r.LatencySeconds,
		ToolLatency: r.ToolLatencySeconds,
	}
}

func rowFrom(runID string, pos int, rec pipeline.AnswerRecord) Row {
	return Row{
		RunID:              runID,
		Position:           pos,
		Query:              rec.Query,
		Answer:             rec.Answer,
		SourceUsed:         rec.ReasoningTrace.Used,
		DecisionText:       rec.ReasoningTrace.DecisionText,
		PromptVersion:      rec.ReasoningTrace.PromptVersion,
		LatencySeconds:     rec.Latency,
		ToolLatencySeconds: rec.ToolLatency,
	}
}

// Options 存储可选项
type Options struct {
	// MaxRetries 写入事务的最大尝试次数，默认 3
	MaxRetries int
	// OnQuery 每次数据库操作完成后回调 (操作名, 耗时)
	OnQuery func(database, op string, d time.Duration)
	// OnPoolStats 健康检查时回调连接池统计
	OnPoolStats func(database string, stats sql.DBStats)
}

// Store 把批次记录持久化到 SQL 数据库
type Store struct {
	pool   *database.PoolManager
	opts   Options
	logger *zap.Logger
}

// Open 按 database 配置连接数据库并确保表存在
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger, opts Options) (*Store, error) {
	var poolOpts []database.PoolOption
	if opts.OnPoolStats != nil {
		poolOpts = append(poolOpts, database.WithStatsObserver(opts.OnPoolStats))
	}
	pool, err := database.Connect(cfg, logger, poolOpts...)
	if err != nil {
		return nil, types.NewConfigError("trace store: %v", err).WithCause(err)
	}

	s := New(pool, logger, opts)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New 使用已有连接池创建存储，不做建表
func New(pool *database.PoolManager, logger *zap.Logger, opts Options) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Store{
		pool:   pool,
		opts:   opts,
		logger: logger.With(zap.String("component", "tracestore")),
	}
}

// Migrate 以 gorm AutoMigrate 建表，已由 kbroute migrate 管理的库上是空操作
func (s *Store) Migrate(ctx context.Context) error {
	defer s.observe("migrate", time.Now())
	if err := s.pool.DB().WithContext(ctx).AutoMigrate(&Row{}); err != nil {
		return fmt.Errorf("trace store migrate: %w", err)
	}
	return nil
}

// Save 在一个事务里写入一批记录，Position 保持批内顺序
func (s *Store) Save(ctx context.Context, runID string, records []pipeline.AnswerRecord) error {
	if len(records) == 0 {
		return nil
	}
	if runID == "" {
		return types.NewError(types.ErrInvalidRequest, "run id is required")
	}
	defer s.observe("save", time.Now())

	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = rowFrom(runID, i, rec)
	}

	err := s.pool.WithTransactionRetry(ctx, s.opts.MaxRetries, func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return fmt.Errorf("trace store save: %w", err)
	}
	s.logger.Debug("batch persisted", zap.String("run_id", runID), zap.Int("records", len(rows)))
	return nil
}

// ListByRun 按批内顺序返回某次运行的记录；不存在时返回空切片
func (s *Store) ListByRun(ctx context.Context, runID string) ([]pipeline.AnswerRecord, error) {
	defer s.observe("list", time.Now())

	var rows []Row
	err := s.pool.DB().WithContext(ctx).
		Where("run_id = ?", runID).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("trace store list: %w", err)
	}

	out := make([]pipeline.AnswerRecord, len(rows))
	for i, r := range rows {
		out[i] = r.Record()
	}
	return out, nil
}

// Ping 就绪检查
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) observe(op string, start time.Time) {
	if s.opts.OnQuery != nil {
		s.opts.OnQuery(s.pool.Name(), op, time.Since(start))
	}
}

// =============================================================================
// pipeline.Sink
// =============================================================================

// Sink 把每个批次写入追踪库
type Sink struct {
	store *Store
}

func NewSink(store *Store) *Sink { return &Sink{store: store} }

func (k *Sink) Name() string { return "tracestore" }

func (k *Sink) Write(ctx context.Context, batch *pipeline.Batch) error {
	return k.store.Save(ctx, batch.RunID, batch.Records())
}

var _ pipeline.Sink = (*Sink)(nil)

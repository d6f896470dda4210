package config

import (
	"fmt"
	"time"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 kbroute 的完整配置结构
type Config struct {
	// Pipeline 编排器配置
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// KB 知识库检索配置
	KB KBConfig `yaml:"kb" env:"KB"`

	// LLM 决策与生成模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Embedding 向量化配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// WebSearch 网络搜索工具配置
	WebSearch WebSearchConfig `yaml:"web_search" env:"WEB_SEARCH"`

	// Prompts 提示词模板配置
	Prompts PromptsConfig `yaml:"prompts" env:"PROMPTS"`

	// Cache 精确匹配缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Redis 缓存后端配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Database 追踪存储配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Output 批处理输出文件配置
	Output OutputConfig `yaml:"output" env:"OUTPUT"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// PipelineConfig 编排器配置
type PipelineConfig struct {
	// 并发处理的查询数，1 表示严格顺序执行
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// 单次 HTTP 请求允许的最大查询数
	MaxQueries int `yaml:"max_queries" env:"MAX_QUERIES"`
	// 展示副本的截断长度（字符）
	DisplayLimit int `yaml:"display_limit" env:"DISPLAY_LIMIT"`
}

// KBConfig 知识库配置
type KBConfig struct {
	// 文档目录
	DocsPath string `yaml:"docs_path" env:"DOCS_PATH"`
	// 文件匹配模式
	Glob string `yaml:"glob" env:"GLOB"`
	// 分块大小（字符）
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	// 分块重叠（字符）
	ChunkOverlap int `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	// 检索返回的块数
	TopK int `yaml:"top_k" env:"TOP_K"`
	// Token 计数器: tiktoken, runes
	Tokenizer string `yaml:"tokenizer" env:"TOKENIZER"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 决策调用的输出上限
	DecisionMaxTokens int `yaml:"decision_max_tokens" env:"DECISION_MAX_TOKENS"`
	// 生成调用的输出上限
	GenerationMaxTokens int `yaml:"generation_max_tokens" env:"GENERATION_MAX_TOKENS"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	// API Key，为空时沿用 LLM.APIKey
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 单批文本数
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE"`
	// 建索引时并发批次数
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// WebSearchConfig 网络搜索配置
type WebSearchConfig struct {
	// Tavily API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 返回结果数
	MaxResults int `yaml:"max_results" env:"MAX_RESULTS"`
	// 搜索深度: basic, advanced
	SearchDepth string `yaml:"search_depth" env:"SEARCH_DEPTH"`
	// 片段拼接后的截断长度
	SnippetLimit int `yaml:"snippet_limit" env:"SNIPPET_LIMIT"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
}

// PromptsConfig 提示词配置
type PromptsConfig struct {
	// 模板目录，为空时使用内置模板
	Dir string `yaml:"dir" env:"DIR"`
	// 生成模板版本: v1, v2
	Version string `yaml:"version" env:"VERSION"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	// 后端: memory（无界）, lru（有界 + TTL）, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// lru 后端的最大条目数
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
	// 条目有效期，0 表示永不过期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// redis 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 的限流速率
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// CORS 允许的来源，为空表示 *
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// API Key 列表，为空时不启用 API Key 认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// JWT 认证
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT 认证配置，Secret 为空时不启用
type JWTConfig struct {
	Secret   string `yaml:"secret" env:"SECRET"`
	Issuer   string `yaml:"issuer" env:"ISSUER"`
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否持久化追踪记录
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名，sqlite 时为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// OutputConfig 批处理输出配置，路径为空表示不写该文件
type OutputConfig struct {
	TextPath string `yaml:"text_path" env:"TEXT_PATH"`
	JSONPath string `yaml:"json_path" env:"JSON_PATH"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// =============================================================================
// 📦 kbroute 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Pipeline:  DefaultPipelineConfig(),
		KB:        DefaultKBConfig(),
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		WebSearch: DefaultWebSearchConfig(),
		Prompts:   DefaultPromptsConfig(),
		Cache:     DefaultCacheConfig(),
		Redis:     DefaultRedisConfig(),
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Output:    DefaultOutputConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultPipelineConfig 返回默认编排器配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Concurrency:  1,
		MaxQueries:   10,
		DisplayLimit: 500,
	}
}

// DefaultKBConfig 返回默认知识库配置
func DefaultKBConfig() KBConfig {
	return KBConfig{
		DocsPath:     "kb_docs",
		Glob:         "*.txt",
		ChunkSize:    1000,
		ChunkOverlap: 100,
		TopK:         3,
		Tokenizer:    "tiktoken",
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:             "https://api.openai.com",
		Model:               "gpt-4o-mini",
		DecisionMaxTokens:   20,
		GenerationMaxTokens: 250,
		Temperature:         0,
		Timeout:             60 * time.Second,
		MaxRetries:          2,
	}
}

// DefaultEmbeddingConfig 返回默认向量化配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL:     "https://api.openai.com",
		Model:       "text-embedding-3-small",
		BatchSize:   64,
		Concurrency: 4,
		Timeout:     60 * time.Second,
	}
}

// DefaultWebSearchConfig 返回默认网络搜索配置
func DefaultWebSearchConfig() WebSearchConfig {
	return WebSearchConfig{
		BaseURL:      "https://api.tavily.com",
		MaxResults:   3,
		SearchDepth:  "basic",
		SnippetLimit: 500,
		Timeout:      30 * time.Second,
		MaxRetries:   2,
	}
}

// DefaultPromptsConfig 返回默认提示词配置
func DefaultPromptsConfig() PromptsConfig {
	return PromptsConfig{
		Dir:     "",
		Version: "v2",
	}
}

// DefaultCacheConfig 返回默认缓存配置（进程内无界缓存）
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:    "memory",
		MaxEntries: 10000,
		TTL:        0,
		KeyPrefix:  "kbroute:",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "kbroute",
		Password:        "",
		Name:            "kbroute.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultOutputConfig 返回默认输出配置
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		TextPath: "answers.txt",
		JSONPath: "answers_trace.json",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "kbroute",
		SampleRate:   0.1,
	}
}

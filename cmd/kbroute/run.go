package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/config"
	"github.com/BaSui01/kbroute/report"
)

// =============================================================================
// 🧾 run 命令
// =============================================================================

// batchFlags run 命令的参数, 非空时覆盖配置文件
type batchFlags struct {
	configPath    string
	docsPath      string
	queriesFile   string
	promptVersion string
	txtOut        string
	jsonOut       string
	concurrency   int
}

func parseBatchFlags(args []string) (batchFlags, error) {
	var f batchFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.docsPath, "docs-path", "", "Path to KB documents")
	fs.StringVar(&f.queriesFile, "queries-file", "queries.txt", "File containing queries")
	fs.StringVar(&f.promptVersion, "prompt-version", "", "Prompt version (v1, v2)")
	fs.StringVar(&f.txtOut, "txt-out", "", "Answer blocks output file")
	fs.StringVar(&f.jsonOut, "json-out", "", "Trace output file")
	fs.IntVar(&f.concurrency, "concurrency", 0, "Queries processed in parallel")
	err := fs.Parse(args)
	return f, err
}

// apply 把命令行参数覆盖到配置上
func (f batchFlags) apply(cfg *config.Config) {
	if f.docsPath != "" {
		cfg.KB.DocsPath = f.docsPath
	}
	if f.promptVersion != "" {
		cfg.Prompts.Version = f.promptVersion
	}
	if f.txtOut != "" {
		cfg.Output.TextPath = f.txtOut
	}
	if f.jsonOut != "" {
		cfg.Output.JSONPath = f.jsonOut
	}
	if f.concurrency > 0 {
		cfg.Pipeline.Concurrency = f.concurrency
	}
}

func runBatch(args []string) error {
	flags, err := parseBatchFlags(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	queries, err := loadQueries(flags.queriesFile)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		logger.Info("no queries to process", zap.String("queries_file", flags.queriesFile))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.close(context.WithoutCancel(ctx)) }()

	batch := a.pipeline.Run(ctx, queries)
	for _, block := range batch.Answers {
		fmt.Println(block)
	}
	logger.Info("batch finished",
		zap.String("run_id", batch.RunID),
		zap.Int("queries", len(queries)),
		zap.Int("answered", len(batch.Answers)),
	)
	return ctx.Err()
}

// loadQueries 读取逐行查询文件, 去掉首尾空白并丢弃空行
func loadQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open queries file: %w", err)
	}
	defer f.Close()
	return readQueries(f)
}

func readQueries(r io.Reader) ([]string, error) {
	queries := make([]string, 0)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return queries, nil
}

// =============================================================================
// 📊 report 命令
// =============================================================================

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	traceFile := fs.String("trace-file", "answers_trace.json", "Trace file written by run")
	out := fs.String("out", "evaluation.md", "Markdown report output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	summary, err := report.GenerateFile(*traceFile, *out, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Evaluation report written to %s (%d queries, KB %d, Web %d)\n",
		*out, len(summary.Rows), summary.KBCount, summary.WebCount)
	return nil
}

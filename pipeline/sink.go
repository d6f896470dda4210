package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink 批处理结果的输出目标
type Sink interface {
	Write(ctx context.Context, batch *Batch) error
	Name() string
}

// TextSink 把文本块写入 UTF-8 文件, 块之间以空行分隔
type TextSink struct {
	Path string
}

// NewTextSink 创建文本输出
func NewTextSink(path string) *TextSink { return &TextSink{Path: path} }

func (s *TextSink) Name() string { return "text:" + s.Path }

func (s *TextSink) Write(_ context.Context, batch *Batch) error {
	return writeFileAtomic(s.Path, func(w *bufio.Writer) error {
		for _, block := range batch.Answers {
			if _, err := w.WriteString(block + "\n"); err != nil {
				return err
			}
		}
		return nil
	})
}

// JSONSink 把记录按输入顺序写成 JSON 数组, 缩进 4 空格, 不转义非 ASCII 与 HTML 字符
type JSONSink struct {
	Path string
}

// NewJSONSink 创建 JSON 输出
func NewJSONSink(path string) *JSONSink { return &JSONSink{Path: path} }

func (s *JSONSink) Name() string { return "json:" + s.Path }

func (s *JSONSink) Write(_ context.Context, batch *Batch) error {
	return writeFileAtomic(s.Path, func(w *bufio.Writer) error {
		return EncodeRecords(w, batch.Records())
	})
}

// EncodeRecords 以 trace 文件格式编码记录
func EncodeRecords(w io.Writer, records []AnswerRecord) error {
	if records == nil {
		records = []AnswerRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return enc.Encode(records)
}

// ReadRecords 读取 JSONSink 写出的 trace 文件
func ReadRecords(path string) ([]AnswerRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []AnswerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode trace file %s: %w", path, err)
	}
	return records, nil
}

// writeFileAtomic 先写临时文件再重命名, 失败时不留下半截文件
func writeFileAtomic(path string, fill func(w *bufio.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := fill(w); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

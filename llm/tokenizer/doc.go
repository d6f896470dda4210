// Package tokenizer 提供 token 计数能力, 用于知识库切块统计与提示词长度日志.
//
// 两种实现:
//   - TiktokenTokenizer: 基于 tiktoken-go, 按模型选择 o200k_base / cl100k_base.
//   - RuneTokenizer: 每个 rune 计一个 token, 离线可用.
package tokenizer

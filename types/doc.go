/*
Package types 提供 kbroute 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 rag、reasoner、pipeline、
api 等上层模块提供统一的错误体系和 context 传播工具。

  - Error / ErrorCode：结构化错误，含 HTTP 状态码、Retryable、Provider 标记
  - WithRunID / WithRequestID / WithPromptVersion：context 传播
*/
package types

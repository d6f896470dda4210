// Package providers 提供 OpenAI 兼容 HTTP 接口的通用部分：
// 请求/响应线格式、HTTP 状态到 llm.Error 的映射、错误消息读取。
package providers

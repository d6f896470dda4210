// Package llm 定义聊天补全服务的统一契约：请求/响应结构、错误码与 Provider 接口。
//
// 决策调用与生成调用都通过 Provider.Completion 发出，具体实现见 llm/providers/openai。
package llm

/*
Package handlers 实现 kbroute HTTP API 的请求处理器。

# 核心类型

  - QueryHandler：POST /query 运行一批查询；GET /query/stream 通过
    websocket 逐条推送完成的记录。超过 MaxQueries 的查询被丢弃。
  - HealthHandler：/health、/healthz、/ready (运行注册的检查)、/version。
  - Response / ErrorInfo：统一 JSON 响应结构 (success + data + error)。
  - ResponseWriter：捕获状态码与响应大小，供日志与指标中间件使用。

# 主要能力

  - WriteSuccess / WriteError / WriteJSON，ErrorCode 到 HTTP 状态码映射
  - DecodeJSONBody：1 MB 上限，空请求体与畸形 JSON 返回 400
  - NewCheck：把 Ping 风格函数注册为就绪检查
*/
package handlers

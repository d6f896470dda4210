/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、查询编排、LLM、搜索工具、缓存与追踪存储六个维度。

# 概述

Collector 统一注册和记录 Prometheus 指标。注册通过 promauto.With
绑定到调用方传入的 Registerer，测试可使用独立的 Registry；
所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 编排器指标：按 route/outcome 计数的查询总数、端到端延迟、批次数。
  - LLM 指标：按调用类型（decision/generation）分组的请求数与耗时。
  - 搜索工具指标：按结果类别计数、调用耗时。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 数据库指标：连接数 Gauge、追踪存储写入耗时。
*/
package metrics

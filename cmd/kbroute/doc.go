/*
Package main 提供 kbroute 命令行程序入口。

# 概述

cmd/kbroute 把知识检索器、决策推理器、网络搜索工具与编排器组装成
可执行程序，支持批处理、HTTP 服务、评估报告与数据库迁移。

# 子命令

  - run      读取逐行查询文件，写出 answers.txt 与 answers_trace.json
  - serve    启动 API 服务（/query、/query/stream、健康检查）与独立的 Metrics 端口
  - report   由 trace 文件生成 Markdown 评估报告
  - migrate  追踪存储的 schema 迁移（up、down、steps、force、version、status、info）
  - version、health

# 中间件链

Recovery、RequestID、SecurityHeaders、OTelTracing、RequestLogger（含 HTTP 指标）、
CORS、RateLimiter（基于 IP），以及按配置启用的 APIKeyAuth 与 JWTAuth。
健康检查路径不需要认证。

构建时通过 ldflags 注入 Version、BuildTime、GitCommit。
*/
package main

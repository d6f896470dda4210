/*
包 server 管理 kbroute serve 的 HTTP 服务器生命周期。

# 概述

Manager 封装 net/http.Server，负责监听、后台服务、优雅关闭与异步
错误传播。API 服务与 metrics 服务各持有一个 Manager。

# 核心类型

  - Manager：Start 非阻塞启动；Wait 阻塞到 ctx 结束或服务异常退出后
    执行优雅关闭；Shutdown 可重复调用；Addr 返回实际监听地址。
  - Config：监听地址、读写与空闲超时、请求头上限、关闭超时。
    ConfigFrom 从应用配置的 server 段构造。
*/
package server

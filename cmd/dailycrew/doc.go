// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 dailycrew 服务端程序入口。

# 概述

cmd/dailycrew 把协调器、专家注册表、引导状态机、定时触发器与
各类存储组装成一个进程，对外提供 HTTP / WebSocket API、RabbitMQ
消费者与 Prometheus 指标，另有数据库迁移、健康检查和版本查询子命令。

# 核心类型

  - Server：持有全部组件，负责初始化顺序与优雅关闭
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler
  - teeRecorder：把领域指标同时写入 Prometheus 与 OpenTelemetry

# 主要能力

  - 子命令：serve、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    OTelTracing、Metrics、CORS、Auth（API Key / JWT）、RateLimiter（按用户或 IP）
  - 路由：chi，/api/v1/events、/api/v1/users/{id}、/api/v1/ws
  - Metrics 服务器：独立端口暴露 /metrics
  - 优雅关闭：信号 → 定时器 → HTTP → 消费者 → 交互日志 → 存储 → 遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main

// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、协调器、
专家、引导、调度、消息代理、缓存与数据库。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
服务通过独立端口的 /metrics 暴露。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 协调器指标：按事件类型、合并策略与结果统计的处理次数和耗时。
  - 专家指标：按专家、结果状态与错误码统计的调用次数和耗时。
  - 引导与凭据指标：步骤转换计数、凭据能力检查结果。
  - 调度与消息指标：定时触发结果、消息消费结果、活跃 websocket 连接数。
  - 缓存与数据库指标：命中/未命中、连接数 Gauge、查询耗时。
*/
package metrics

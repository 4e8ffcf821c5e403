// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 dailycrew HTTP / WebSocket API 的请求处理器实现。

# 概述

handlers 包把外部请求转成协调器事件，并以统一的 JSON 信封返回结果。
所有 Handler 均遵循标准 net/http 接口，路由参数通过 chi 读取。

# 核心类型

  - EventHandler：POST /api/v1/events，同步处理一个事件
  - UserHandler：用户资料、偏好合并与集成凭据更新
  - WebSocketHandler：/api/v1/ws，入站文本帧即消息事件
  - Hub：按用户索引的在线连接，承接定时回复推送
  - HealthHandler：/health、/ready、/version
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码与字节数

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式 + Content-Type 校验）
  - ErrorCode → HTTP 状态码映射：StatusForCode
  - 主体校验：JWT 主体必须与目标用户一致
  - 可扩展就绪检查：RegisterCheck 注册 HealthCheck / CheckFunc
*/
package handlers

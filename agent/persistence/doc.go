// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供会话上下文（Session Context）的持久化存储抽象及多后端实现。

# 概述

每位用户拥有一份短期会话上下文：最近若干轮对话、进行中的子任务以及
上一次调度的结果（用于事件重放）。本包以统一接口屏蔽底层存储差异，
使协调器无需关心上下文保存在内存、Redis 还是数据库中。

# 核心接口

  - Store: 所有存储的基础接口，提供 Close 和 Ping 健康检查。
  - ContextStore: 会话上下文存储，支持 Load / Save / Delete。
    Load 在用户尚无上下文时返回 ErrNotFound；
    数据无法解码或校验失败时返回包装 ErrCorrupt 的错误，
    由调用方决定以空上下文重新开始。

# 后端实现

  - Memory: 内存实现，保存编码后的 JSON，调用方与存储互不共享状态。
  - Redis: 基于 cache.Manager，键为 session:<user>，每次保存刷新过期时间。
  - Database: 基于 gorm 的 session_contexts 表，按 user_id 幂等 upsert。

# 使用方式

	store, err := persistence.NewContextStore(cfg, persistence.Backends{Cache: cm, DB: db})

每次 Save 都会递增 Version 并刷新 UpdatedAt。
*/
package persistence

// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package credential 提供按 (用户, 集成类型) 存取集成凭据的存储。
//
// 核心逻辑只通过 Has 做能力检查；凭据原文只在集成适配器内部通过
// Handle.Open 取出。Payload 在 String、GoString 与 zap 日志中均会脱敏，
// CapabilityCache 只缓存布尔结果，凭据原文永远不会进入缓存。
package credential

// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package interaction 提供只追加的交互日志。
//
// 协调器每个回合、每次引导、每次定时触发都会写入一条 Entry，
// 用于审计与可观测性；核心决策逻辑从不读回这些记录。
// Sink 实现包括 gorm 表、MongoDB 集合、消息代理发布、内存以及扇出组合。
package interaction

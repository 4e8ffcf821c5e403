// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package users 管理 dailycrew 的用户记录。
//
// 用户在首次接触时创建，只由引导状态机与显式的偏好更新操作修改，
// 核心逻辑从不删除用户。Repository 提供 gorm 与内存两种实现，
// CachedRepository 在其前面加一层基于 Redis 的 JSON 读穿缓存。
package users

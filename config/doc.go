// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package config 提供 dailycrew 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → .env 文件 → 环境变量 的顺序叠加，
// 环境变量以 DAILYCREW_ 为前缀，通过结构体 env 标签反射解析。
// Validate 在服务启动前检查端口、调度参数、存储类型与定时窗口。
package config

// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package telemetry 负责 dailycrew 的 OpenTelemetry 接入。
//
// Init 按配置创建 OTLP gRPC 导出的 TracerProvider 与 MeterProvider 并注册为全局实现；
// 禁用时保持全局 noop，不连接任何外部服务。Instruments 把协调器与调度器的
// 回合、专家调用、引导迁移与定时触发事件记录为 OTel 计数器和直方图，
// 与 internal/metrics 的 Prometheus 采集器并行使用。
package telemetry

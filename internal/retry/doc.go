// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package retry 提供有界的指数退避重试。
//
// 专家与集成客户端通过 Backoff 调用外部接口：尝试次数固定上限，
// 只有被判定为可重试的错误（*RetryableError 或 Retryable 的 *types.Error）才会再次尝试，
// 上下文取消或超时立即返回。
package retry

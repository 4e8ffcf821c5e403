// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package integrations 提供第三方集成客户端共用的 REST 调用层。
//
// 子包 github、google、youtrack 各自实现 CheckCredential 与专家需要的少量调用。
// 所有请求使用 tlsutil.SecureHTTPClient，并按以下规则映射错误：
// 401/403 为 ErrUnauthorized（不可重试），429 与 5xx 以及网络错误为可重试的
// types.Error，其余 4xx 不可重试。重试由 internal/retry 的指数退避完成。
package integrations

// Package api 定义 dailycrew HTTP API 的请求与响应结构。
//
// # API Overview
//
//   - POST  /api/v1/events                               提交事件，同步返回协调器回复
//   - GET   /api/v1/users/{id}                           用户资料与集成状态
//   - PATCH /api/v1/users/{id}/preferences               合并偏好设置
//   - PUT   /api/v1/users/{id}/integrations/{kind}       连接或更换集成凭据
//   - GET   /api/v1/ws?user_id=                          实时通道，定时推送也走这里
//   - GET   /health /healthz /ready /readyz /version
//
// # Authentication
//
// 配置了 API Key 时使用 X-API-Key 头；配置了 JWT 时使用 Bearer token，
// token 的 subject 必须与路径或事件中的用户 ID 一致。
package api

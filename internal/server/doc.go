// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 dailycrew 对外 HTTP 监听的生命周期。

# 核心类型

  - Manager：封装 http.Server，提供非阻塞 Start、带超时的 Shutdown
    与异步错误通道。配置了证书时通过 tlsutil 以 HTTPS 启动。
  - Group：事件 API 与 /metrics 两个服务器一起启动、一起关闭，
    Wait 在进程信号或任一服务器异常退出时返回。
  - APIConfig / MetricsConfig：从 config.ServerConfig 生成监听配置。
*/
package server

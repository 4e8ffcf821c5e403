// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 dailycrew 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、api、cmd 等上层模块
提供统一的类型契约：入站事件、出站回复、集成类型与状态、引导步骤，以及
结构化错误码体系。

# 核心类型

  - Event / EventKind：入站事件（用户消息、定时触发、集成 webhook）
  - Reply / Block：出站回复（文本 + 可选结构化块）
  - IntegrationKind：github / google / youtrack
  - IntegrationStatus：not_configured / configured / skipped
  - OnboardingStep：welcome → github_setup → google_setup → youtrack_setup → complete
  - Error / ErrorCode：结构化错误，含 HTTP 状态码与 Retryable 标记
*/
package types

// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package onboarding 实现逐用户的集成配置引导状态机。

步骤按 welcome → github_setup → google_setup → youtrack_setup → complete 前进，
用显式的转换表描述：每个非终止步骤对应一个集成、一段提示语和下一步。
Parse 把用户输入归类为确认、跳过、凭据或自由文本；Machine.Step 依据转换表推进，
连续无效输入达到阈值后自动跳过并标记 Stuck。

引导完成后，重新配置集成走 Updater 的显式 "update <kind> <credentials>" 命令，
不会重新进入引导流程。
*/
package onboarding

// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package activity 统计用户每小时的消息数，并判断活跃度是否明显下降。
//
// 活跃度检查触发时，Check 比较最近一个窗口与之前一个等长窗口：
// 之前窗口至少 3 条、且下降不少于 30% 时视为下降，协调器据此发送激励提醒。
package activity

// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package scheduler 按用户本地时间生成定时事件。
//
// 每个 tick 处理窗口 (last, now]，只触发落在窗口内的规则时刻；
// 窗口超过两个 tick（进程暂停或停机）时被截断，错过的时刻不会补发。
// 事件通过 goroutine 池交给 Dispatcher，非静默回复交给 Outbound 投递。
package scheduler

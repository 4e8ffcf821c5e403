// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package coordinator 实现每个回合的调度核心。

Coordinator.Handle 接收一个入站事件（用户消息、定时触发或集成 webhook），
按用户串行处理：加载用户与会话上下文，未完成引导的消息交给引导状态机，
其余事件经过分类、凭证门控、分阶段执行专家并按固定优先级合并结果，
最后写回会话上下文并追加一条交互日志。

# 执行模型

同一阶段的专家通过 errgroup 并发执行，并受 fan-out 上限约束；
后续阶段接收前序阶段输出的压缩上下文。规划加单个执行类专家时
采用 planner_then_executor，执行专家只以规划结果为上游。

任何单个专家的失败都只会替换它自己的段落，回合本身总是产生回复。
*/
package coordinator

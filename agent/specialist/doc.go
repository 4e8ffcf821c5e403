// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package specialist 定义专家契约与内置的六个专家。

每个专家是同一能力集合的一个变体：Descriptor 声明类别、执行阶段与所需集成，
Run(ctx, Task) 返回 Outcome、NeedsInfo 或 Failed 三种结果之一。新增专家只需
实现 Specialist 并通过 Registry.Register 注册到其类别，不存在基类继承。

内置专家均为模板驱动、结果确定：

  - Planner：根据意图条目与 Google 日历事件生成时间块计划。
  - Analyst：把意图拆解为有序子任务，可附带 YouTrack 未关闭问题。
  - Developer：列出 GitHub 上分配给用户的 issue 与打开的 PR，并给出针对性建议。
  - Researcher：生成研究大纲。
  - Communicator：起草邮件并在 Gmail 中创建草稿，或列出当天会议。
  - Motivator：根据意图与上游结果挑选激励或减压建议。

专家只拿到 credential.Handle，凭据原文仅在调用集成客户端前通过 Handle.Open 取出。
*/
package specialist

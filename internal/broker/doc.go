// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package broker 提供基于 RabbitMQ 的入站事件消费与出站回复发布。
//
// 所有消息以 Envelope{meta, data} 的 JSON 形式在 topic 交换机上传递。
// Consumer 将绑定到 event.# 的队列中的投递解码为 types.Event，
// 交给有界 goroutine 池处理：成功 ack，无法解码 nack(requeue=false)，
// 可重试错误 nack(requeue=true)。回复以 reply.<kind> 为路由键发布，
// correlation_id 为原事件 ID。
package broker

// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，供会话上下文、用户资料缓存、
凭证能力缓存、活跃度计数与定时任务去重共用。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端，所有键自动加上 KeyPrefix，
    提供 Get/Set/SetNX/IncrWithExpire/GetInts/Delete/Exists/Expire 以及
    GetJSON/SetJSON 便捷序列化方法。
  - Config：地址、密码、连接池、默认 TTL、键前缀与健康检查间隔，
    可通过 ConfigFromRedis 从服务配置生成。
  - Stats：连接池统计。

# 错误语义

ErrCacheMiss 表示键不存在；ErrClosed 表示管理器已关闭。
*/
package cache

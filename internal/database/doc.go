// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责 dailycrew 的关系型存储连接：按配置选择方言打开 gorm，
管理连接池，并提供带退避重试的事务。

# 核心类型

  - Open：postgres、mysql、sqlite（纯 Go，glebarez）、sqlite3（cgo）四种方言，
    gorm 日志经 NewGormLogger 写入 zap。
  - PoolManager：持有 gorm DB 与底层 sql.DB，提供 Ping、Stats、Close，
    serve 命令用它做就绪检查并定期上报连接数指标。
  - PoolConfig / PoolConfigFrom：由 config.DatabaseConfig 推导的连接池参数。
  - Transact：死锁、序列化失败、锁超时与断连时按 internal/retry 指数退避重试的事务，
    用户偏好合并等读改写路径使用它。
*/
package database

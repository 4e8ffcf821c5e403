// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 dailycrew 的数据库 Schema，基于 golang-migrate。

内嵌的 SQL 迁移按方言（postgres/mysql/sqlite）分目录存放，创建
users、credentials、session_contexts、interactions 四张表，列名与
gorm 仓储的结构体标签一致。SQLite 走 cgo 的 sqlite3 驱动（与 database 包的 sqlite3 方言相同），
纯 Go 的 sqlite 方言只用于 AutoMigrate 场景。

  - Migrator / DefaultMigrator：Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info 操作集。
  - CLI：`dailycrew migrate <command>` 的格式化输出层，Run 按子命令分发。
  - NewMigratorFromDatabaseConfig：从 config.DatabaseConfig 构造迁移器，
    serve 在 database.auto_migrate 打开时启动前执行 Up。
*/
package migration

/*
包 migration 管理辩论归档库的 Schema，支持 PostgreSQL、MySQL 与 SQLite，
基于 golang-migrate 实现。

各方言的 SQL 文件通过 embed.FS 内嵌在 migrations/<driver>/ 下，
当前包含 debate_sessions 与 debate_turns 两张表。

  - DefaultMigrator：封装 golang-migrate 实例，提供 Up/Down/Steps/Force/
    Version/Status/Info。SQLite 使用纯 Go 驱动打开连接。
  - CLI：oracle migrate 子命令的输出层，Run 负责分发子命令。
  - NewMigratorFromDatabaseConfig：由应用配置的 database 段创建迁移器。
*/
package migration

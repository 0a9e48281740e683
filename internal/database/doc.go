/*
包 database 提供基于 GORM 的数据库连接与连接池管理，
供辩论结果归档使用。

# 核心类型

  - Open / Dialector：按配置选择 postgres、mysql、sqlite（纯 Go，glebarez）
    或 sqlite3（cgo）方言并建立连接。
  - PoolManager：持有 GORM DB 与底层 sql.DB，负责连接池参数、
    后台健康检查（可上报连接数指标）、事务与可重试事务。
  - PoolConfig：连接池配置。

WithTransactionRetry 对死锁、序列化失败、连接中断与 SQLite 锁等
瞬时错误做指数退避重试。
*/
package database

/*
包 migration 管理追踪库 answer_records 表的 Schema 版本，支持
PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中，由 iofs 源驱动
交给 golang-migrate 执行。SQLite 方言使用 sqlite3 驱动注册名，
追踪存储的 gorm 连接使用独立的 "sqlite" 注册名，二者可以链接进同一个
二进制。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、Steps、Force、Version、
    Status、Info、Close。ctx 取消时请求 golang-migrate 优雅停止。
  - Config：方言、连接串、版本表名、锁超时与日志。
  - CLI：kbroute migrate 子命令的终端输出层。

# 工厂函数

NewMigratorFromConfig / NewMigratorFromDatabaseConfig 读取应用配置的
database 段，NewMigratorFromURL 直接使用连接串。
*/
package migration

/*
包 database 负责打开追踪库连接并管理连接池。

# 概述

Connect 按 database.driver 选择 gorm 方言 (glebarez 纯 Go SQLite、
PostgreSQL、MySQL)，再用 PoolManager 包装底层 sql.DB。SQLite 固定为
单连接。

# 核心类型

  - PoolManager：持有 gorm.DB 与 sql.DB，提供 DB、Ping、Stats、Close、
    WithTransaction 与 WithTransactionRetry。后台健康检查按间隔探活，
    并通过 WithStatsObserver 把连接数交给指标层。
  - PoolConfig：最大打开与空闲连接数、连接生命周期、健康检查间隔。

死锁、序列化失败、SQLITE_BUSY 与连接中断视为可重试错误，按指数退避重试。
*/
package database

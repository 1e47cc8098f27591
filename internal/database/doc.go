// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供步骤历史存储所用的 GORM 连接池管理。

# 概述

Open 按驱动名（postgres、mysql、sqlite、sqlite3）选择 GORM 方言并打开连接，
随后由 PoolManager 统一管理连接池参数、健康检查与关闭。
steplog.HistorySink 基于本包将每个步骤写入关系型数据库。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB、Ping、Stats、Close。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 方言选择：Dialector 将驱动名映射为 GORM 方言。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败、sqlite 忙等错误做指数退避重试。
*/
package database

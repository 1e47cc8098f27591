// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的步骤事件流与快照存储。

# 概述

本包封装 go-redis 客户端。Manager 负责连接生命周期管理，包括初始化、
健康检查与优雅关闭，并对外提供事件流（XADD/XRANGE）与 JSON 快照两类操作。
步骤日志的 Redis 输出（steplog.RedisSink）基于本包实现。

# 核心类型

  - Manager：持有 Redis 客户端，提供 Append/Range/Length 事件流操作，
    以及 SetJSON/GetJSON/Delete 快照操作。
  - Config：地址、密码、连接池大小、默认 TTL、事件流裁剪长度与健康检查间隔。
  - Entry：事件流中的一条记录。

# 错误语义

  - ErrClosed：管理器关闭后的所有调用返回该错误。
  - ErrCacheMiss：快照不存在，可通过 IsCacheMiss 判断。
*/
package cache

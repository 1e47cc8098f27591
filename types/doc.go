// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 testflow 框架的全局共享类型定义。

# 概述

types 是框架最底层的公共包，不依赖任何内部包，为 browser、instrument、
tabs、poll 等上层模块提供统一的错误契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 Selector、Retryable 标记
  - NewTimeoutError: 等待/轮询超过截止时间
  - NewNotFoundError: 目标元素不存在

# 错误码

  - TIMEOUT / NOT_FOUND / ROOT_NOT_FOUND: 等待与查找
  - INTERCEPT_CONFIG / RENDER_FAILED / DUPLICATE_ACTION / ACTION_PANICKED: 执行引擎
  - DRIVER / SESSION_ENDED / INVALID_CONFIG: 驱动与会话
*/
package types

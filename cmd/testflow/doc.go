// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 TestFlow 命令行入口。

# 概述

cmd/testflow 加载 YAML 配置，构建日志、遥测、指标与可选的
Redis/数据库/devtool 组件，然后对一个或多个 URL 并发执行探测：
每个 URL 使用独立会话打开页面并等待目标元素可见。

# 子命令

  - probe：--config、--url（可重复）、--selector、--timeout、
    --metrics-addr、--watch
  - version：打印构建注入的版本信息
  - help：打印用法
*/
package main

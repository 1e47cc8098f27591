// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的动作执行指标采集，覆盖
动作、步骤、截图、断点、会话与 devtool 通道。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册。NewCollector 注册到默认 Registry，NewCollectorWithRegistry
允许测试或多实例场景使用独立 Registry。所有指标按 namespace 隔离。

# 核心指标

  - actions_total / action_duration_seconds：顶层动作次数与耗时，按 outcome 区分。
  - nested_actions_total：在已打开步骤内执行的嵌套动作次数。
  - steps_open：当前打开的步骤数，正常情况下每次调用结束后归零。
  - screenshots_total：截图尝试，按触发方式与结果（saved/failed/throttled）区分。
  - breakpoint_suspensions_total / breakpoint_wait_seconds：断点挂起次数与等待时长。
  - sessions_active、devtool_messages_total：会话数与 devtool 消息数。

所有 Record 方法对 nil *Collector 安全，未启用指标时可直接传 nil。
*/
package metrics

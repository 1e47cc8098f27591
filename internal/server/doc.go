// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 在一次运行期间通过 HTTP 暴露 Prometheus 指标。

# 概述

Manager 封装 net/http.Server，非阻塞启动并支持优雅关闭。
Handler 将 /metrics 绑定到指定的 prometheus.Gatherer，
并提供 /healthz 存活探针。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道。
  - Config：监听地址、请求头读取超时与优雅关闭超时。
*/
package server

// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 browser 提供面向测试代码的浏览器会话操作。

# 概述

Session 把底层驱动的单一用途调用（点击、取值、等待存在等）
包装为带步骤日志、断点、错误消息拦截与截图的动作。每个
Session 拥有独立的执行上下文与主标签页跟踪器，多个 Session
可以并发运行；断点状态在进程内共享。

# 核心类型

  - Session：单个浏览器会话，全部操作返回 *instrument.Pending
  - Manager：按 ID 管理多个会话的创建与销毁
  - DriverFactory：为新会话创建驱动

# 使用方式

	s, _ := browser.NewSession(drv, browser.DefaultSessionConfig())
	_, err := s.Click(ctx, selector.CSS("#login")).IfError("login button missing").Wait()

元素操作会先以嵌套方式等待元素可见，因此不会产生额外步骤。
*/
package browser

// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 testflow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，
避免重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertErrorCode / AssertEventuallyTrue
  - 等待工具: WaitFor / WaitForChannel
  - 文件工具: WriteConfig / RewriteConfig，用于配置热加载测试

# 子包

  - testutil/mocks: MockDriver，内存中的浏览器驱动，
    支持元素注册、标签页、弹窗、脚本结果与按方法注入错误

# 使用示例

	ctx := testutil.TestContext(t)
	d := mocks.NewMockDriver().WithElement("#go", mocks.Element{Visible: true})
	_, err := session.Click(ctx, selector.CSS("#missing")).Wait()
	testutil.AssertErrorCode(t, err, types.ErrTimeout)
*/
package testutil

/*
Package testutil 提供辩论引擎测试的共享工具。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup
  - 辩论断言: AssertTranscriptWellFormed 检查角色交替与轮次编号
  - 异步等待: AssertEventuallyTrue / WaitFor / WaitForChannel
  - 数据工具: MustJSON / MustParseJSON / SampleFacts

# 子包

  - testutil/mocks: MockProvider，脚本化响应、错误注入与调用记录
*/
package testutil

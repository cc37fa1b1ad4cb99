/*
Package testutil 提供 adregistry 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 索引辅助: NewIndex 基于内存存储与静态成员目录创建联邦索引
  - 时钟: FixedClock 用于 TTL 与过期逻辑测试
  - 异步断言: AssertEventuallyTrue / WaitFor
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockFetcher（adagents.json 获取器）、MockDialer 与
    MockAgentClient（多协议代理客户端），支持错误注入与挂起
  - testutil/fixtures: 清单、属性与注册代理/发布商的测试数据工厂
*/
package testutil

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM 调用、辩论会话、缓存与数据库。

# 核心类型

  - Collector：指标收集器。它实现 llm/middleware.MetricsCollector，
    挂在每个角色的调用链上；同时实现 debate.Recorder，由编排器在
    发言、校验与会话结束时调用。

所有指标按 namespace 隔离，注册到调用方传入的 Registerer。
*/
package metrics

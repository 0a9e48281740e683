/*
# 概述

包 debate 实现乐观方与怀疑方之间的多轮对抗辩论引擎: 轮转协议、带校验门控的生成循环、
收敛检测与共识合成. 事实 (财报、模拟结果、情景参数) 由外部提供, 引擎只读.

# 状态机

	OPENING → CHALLENGE → {RESPONSE → CONVERGENCE_CHECK → (COUNTER | STOP)}* → SYNTHESIZED

会话状态是显式的 sessionState, 在每个步骤之间传递. 一个会话内的生成调用严格串行;
取消只在轮次边界生效.

# 核心类型

  - Orchestrator: 编排器, 通过 Generator 接口绑定两个角色, 从不引用具体 provider
  - Generator / ProviderGenerator: 生成能力及其基于 llm 中间件链的实现 (限速、重试、指标、追踪)
  - Validator / FailurePolicy: 乐观方发言的事实校验与校验器故障策略
  - DetectConvergence: 最近 4 条发言上的词法收敛检测
  - Synthesizer: KeywordSynthesizer (确定性) 与 DelegatedSynthesizer (委托生成, 失败降级)
  - TurnObserver / Recorder: 发言流推送与指标钩子
*/
package debate

/*
Package types 提供 Oracle 全局共享的错误类型定义。

types 是最底层的公共包，不依赖任何内部包。

# 错误体系

  - CONFIGURATION_ERROR: 构造阶段缺少凭据或依赖，第一轮之前即失败
  - GENERATION_TRANSPORT_ERROR: 单次生成调用失败，可重试
  - SESSION_FAILURE: 重试耗尽或会话被取消，向调用方传播
  - SYNTHESIS_PARSE_ERROR: 共识解析失败，内部降级处理，不向外传播

错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode。
*/
package types

/*
包 cache 提供基于 Redis 的缓存能力。

# 核心类型

  - Manager：封装 go-redis 客户端，负责连接、键前缀、默认 TTL、
    后台健康检查与关闭，提供字符串与 JSON 两种读写方式。
  - VerdictStore：校验判定缓存，实现 validator.VerdictCache，
    键为发言与事实的 SHA-256。
  - ResponseStore：LLM 响应缓存，实现 middleware.Cache，
    用于共识合成的调用链。

缓存读写失败只记录日志并按未命中处理。
*/
package cache

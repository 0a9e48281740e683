/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动与优雅关闭。

# 核心类型

  - Manager：封装 net/http.Server 与 net.Listener，提供
    Start/Shutdown/Errors 生命周期方法。oracle serve 用两个 Manager
    分别承载 API 与 /metrics。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与关闭超时。
    ConfigFrom 从 config.ServerConfig 构建。

信号处理由调用方负责，Shutdown 在 ShutdownTimeout 内排空请求。
*/
package server

// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为辩论引擎提供 TracerProvider、MeterProvider 与按角色计数的发言观察者。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry

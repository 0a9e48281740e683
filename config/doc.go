// Package config 加载 Oracle 的运行配置。
//
// 加载顺序为默认值、YAML 文件、ORACLE_ 前缀的环境变量。
// 嵌套字段的环境变量名由各级 env 标签拼接而成，
// 例如 ORACLE_PROVIDERS_GEMINI_MIN_INTERVAL。
package config

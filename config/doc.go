// Package config 提供 TestFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序合并，
// 断点开关可通过 Reloader 在运行时从配置文件热重载。
package config

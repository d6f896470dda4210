// Package config 提供 kbroute 的配置管理功能。
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（KBROUTE_ 前缀）。
// 凭证缺失不在 Validate 中报错，由需要它的组件在构造时报告。
package config

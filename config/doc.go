// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

// Package config 提供 adregistry 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → ADREGISTRY_* 环境变量 的顺序叠加，
// 环境变量名由段名与字段 env tag 拼接，例如 ADREGISTRY_CRAWLER_PROBE_TIMEOUT。
package config

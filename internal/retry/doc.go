// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

// Package retry 提供指数退避重试器，用于对外部站点的 HTTP 抓取。
//
// 默认所有错误都会重试，调用方可以用 Permanent 包装明确不可恢复的错误
// （例如 404），或通过 Policy.ShouldRetry 自定义判定。
package retry

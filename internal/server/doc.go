// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

/*
包 server 提供注册服务的运维 HTTP 端点。

# 端点

  - GET /health：执行已注册的 HealthCheck（数据库、Redis），
    任一失败返回 503；Details 附带最近一次爬取摘要。
  - GET /healthz：存活探针，不做依赖检查。
  - GET /metrics：Prometheus 指标。

# 生命周期

Manager 封装 net/http.Server。Run 在 ctx 结束或服务异常时按
ShutdownTimeout 优雅关闭。
*/
package server

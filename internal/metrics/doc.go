// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、爬取、
索引写入、缓存与数据库连接。

# 概述

Collector 通过 promauto 注册到默认 Registry，所有指标按 namespace
隔离。Record 方法对 nil 接收者安全，调用方无需判空。

# 主要能力

  - 爬取指标：爬取次数（success/error/skipped）与耗时、
    adagents.json 抓取结果与耗时、代理类型探测结果与耗时。
  - 索引指标：按 operation/status 统计的写操作次数，TTL 清理行数。
  - 缓存指标：能力缓存命中与未命中，按 cache_type 分组。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics

// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

/*
adregistry 是联邦销售代理授权索引的命令行入口。

# 子命令

  - serve：装配存储、能力发现与爬虫，按 crawler.interval 周期爬取，
    按 crawler.cleanup_interval 清理过期数据，并在 server.http_port
    暴露 /health、/healthz、/metrics。收到 SIGINT/SIGTERM 后优雅退出。
  - crawl：执行一次完整爬取，以 JSON 输出结果与索引统计。
  - migrate：基于 golang-migrate 的嵌入式 SQL 迁移。
  - version / health：版本信息与远程健康检查。

配置加载顺序为默认值、YAML 文件、ADREGISTRY_* 环境变量。
*/
package main

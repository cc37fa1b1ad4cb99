// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

/*
包 migration 管理发现数据表的 Schema 迁移，支持 PostgreSQL、MySQL 与
SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 文件通过 embed.FS 内嵌在 migrations/<dialect>/ 下，
创建 Tables 列出的六张表：发现的代理、发布商、属性及其标识符，
以及两张授权表。表结构与 store 包的 GORM 模型一一对应。

# 使用

  - NewMigratorFromDatabaseConfig / NewMigratorFromURL 创建迁移器。
  - ApplyAll 供 serve 启动时自动迁移。
  - CLI.Run 解析 migrate 子命令（up/down/steps/force/version/status/info）
    并输出格式化结果。
*/
package migration

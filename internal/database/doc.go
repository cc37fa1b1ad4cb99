// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

/*
包 database 负责打开联邦索引使用的关系数据库并管理连接池。

# 驱动

Open 按 database.driver 选择 GORM 方言：postgres、mysql 或 sqlite
（glebarez 纯 Go 实现）。memory 驱动不经过本包。

# 连接池

PoolManager 应用 PoolConfig 中的连接数与生命周期设置，后台定时
Ping 探活，并把打开/空闲连接数写入 metrics.Collector。Ping 同时
被 /health 使用。sqlite 强制单连接。
*/
package database

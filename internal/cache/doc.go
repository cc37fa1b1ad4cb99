// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的缓存管理能力，供多实例部署共享能力发现结果。

# 概述

本包封装 go-redis 客户端，为上层业务提供统一的缓存读写接口。
Manager 负责连接生命周期管理，包括初始化、健康检查与优雅关闭。
所有键都会加上 Config.KeyPrefix，支持可选 TLS 加密连接。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/Ping 基础操作，
    以及 GetJSON/SetJSON 便捷序列化方法。
  - Config：缓存配置，包含地址、键前缀、连接池大小、默认 TTL、
    TLS 开关与健康检查间隔等参数。
  - Stats：缓存统计信息，包含命中数、未命中数、键数量与连接数。

# 错误语义

未命中返回 ErrCacheMiss（可用 IsCacheMiss 判断），关闭后的调用返回 ErrClosed。
*/
package cache

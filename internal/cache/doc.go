/*
包 cache 提供精确键匹配的缓存存储，用于检索、生成与网络搜索三类结果的记忆化。

# 核心类型

  - Store：统一的字节级键值接口，未命中时返回 ErrCacheMiss。
  - LRUStore：进程内缓存。容量为 0 时无界（memory 后端），
    否则由 golang-lru 按最久未使用淘汰（lru 后端）；TTL 为 0 表示永不过期。
  - RedisStore：基于 go-redis 的共享缓存，键统一加前缀。
  - Memo：类型化的读穿缓存，JSON 编解码，并用 singleflight
    合并同一键的并发加载。

缓存故障从不让请求失败：读错误按未命中处理，写错误只记录日志。
*/
package cache

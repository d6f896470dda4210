/*
# 概述

Package pipeline 编排单个查询的完整事务: 知识库检索, 路由决策,
KB 生成或网络搜索, 延迟测量与轨迹组装, 并把一批查询的结果汇总.

# 失败隔离

单个查询内的任何失败 (包括 panic) 只导致该查询被跳过, 批处理继续.
输出顺序与输入顺序一致, 被跳过的查询不出现在 answers 与 traces 中.
持久化失败只记录 Warn 日志, 不影响返回值.

# 并发

Options.Concurrency 为 1 时严格顺序执行; 大于 1 时通过 errgroup 限流并行,
结果仍按输入顺序汇总. context 取消后不再调度新的查询.
*/
package pipeline

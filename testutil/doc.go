/*
Package testutil 提供 kbroute 测试共用的辅助函数。

  - TestContext / CancelledContext: 带超时或已取消的上下文
  - WriteKB: 在临时目录写入知识库文件

子包 testutil/mocks 提供确定性的替身: MockProvider（按 prompt 片段应答并记录调用）、
HashEmbedder（按词哈希生成向量）、SearchClient（返回固定搜索结果）。

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithRule("Reply with exactly one word", "kb")
	resp, err := provider.Completion(ctx, req)
*/
package testutil

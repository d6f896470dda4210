/*
# 概述

Package rag 实现知识库检索: 从文档目录建立内存向量索引,
按查询返回最相关的文本块及其拼接摘要.

# 核心类型

  - Document: 文档或文档块, 携带元数据与向量.
  - DocumentLoader: 文档加载接口, 目录加载器见子包 loader.
  - DocumentChunker: 递归字符切分器, 分隔符依次为段落、换行、空格、单字符.
  - InMemoryVectorStore: 余弦相似度检索, 同分时保持插入顺序.
  - KnowledgeRetriever: 构造时建索引; GetRelevantDocs 带精确键缓存,
    检索失败时降级为空结果而不是返回错误.
*/
package rag

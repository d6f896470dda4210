package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/kbroute/tools/websearch"
)

// SearchClient 是 websearch.Client 的模拟实现, 对所有查询返回同一组结果
type SearchClient struct {
	mu      sync.Mutex
	results []websearch.SearchResult
	err     error
	queries []string
}

// NewSearchClient 创建返回 results 的模拟搜索客户端
func NewSearchClient(results ...websearch.SearchResult) *SearchClient {
	return &SearchClient{results: results}
}

// WithError 让之后的搜索都返回 err
func (c *SearchClient) WithError(err error) *SearchClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	return c
}

func (c *SearchClient) Search(ctx context.Context, query string, maxResults int) ([]websearch.SearchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	if maxResults > 0 && len(c.results) > maxResults {
		return c.results[:maxResults], nil
	}
	return c.results, nil
}

func (c *SearchClient) Name() string { return "mock-search" }

// Queries 返回收到的查询
func (c *SearchClient) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

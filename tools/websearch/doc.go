// Package websearch 实现网络搜索工具: Tavily 搜索客户端与带缓存的 Tool.
//
// Tool.Search 从不返回错误. 搜索无结果或调用失败时分别返回固定的
// 提示文本, 两者与正常片段一样被缓存.
package websearch

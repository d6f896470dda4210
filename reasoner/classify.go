package reasoner

import "strings"

// RoutingDecision 路由结果
type RoutingDecision string

const (
	UseKB  RoutingDecision = "kb"
	UseWeb RoutingDecision = "web"
)

// Source labels written to traces.
const (
	SourceKB  = "KB"
	SourceWeb = "Web"
)

// webToken 决策文本中出现即走网络搜索
const webToken = "tavily"

// Classify maps raw classifier output to a routing decision.
func Classify(raw string) RoutingDecision {
	if strings.Contains(strings.ToLower(raw), webToken) {
		return UseWeb
	}
	return UseKB
}

// Source returns the trace label for d.
func (d RoutingDecision) Source() string {
	if d == UseWeb {
		return SourceWeb
	}
	return SourceKB
}

// Package reasoner decides, per query, whether the knowledge base can answer
// it or a web search is needed, and generates KB-grounded answers.
//
// The routing rule lives in Classify: a decision whose lower-cased text
// contains "tavily" routes to the web, anything else stays on the KB.
package reasoner

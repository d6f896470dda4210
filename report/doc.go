// Package report builds a Markdown evaluation report from a pipeline trace
// file: a per-query table, a latency summary and short quality notes.
package report

// Package tracestore persists answer records to a SQL database through gorm.
//
// Rows live in the answer_records table (see internal/migration). Each batch is
// written in one transaction and keeps its in-batch position, so ListByRun
// returns records in the order the pipeline produced them. Sink adapts a Store
// to pipeline.Sink.
package tracestore

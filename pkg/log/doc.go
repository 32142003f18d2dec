// Package log provides the process-wide structured logger, a thin wrapper
// over zerolog with component-, node-, and term-scoped child loggers that
// chain together for consensus logging (e.g. "consensus" + node id + term).
package log

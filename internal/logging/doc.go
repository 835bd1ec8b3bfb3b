// Package logging provides structured JSON logging with file rotation for
// fainderqld. Every command logs to a rotating file under ~/.fainderqld/logs/
// and to stderr; --debug lowers the level to debug. The query pipeline
// itself writes no per-node execution records.
package logging

// Package logging provides a minimal logging interface and adapters for chatmesh.
//
// The Logger interface defines the logging methods (Debug, Info, Warn, Error)
// that agents, tools and the retrieval pipeline use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZapAdapter wrapping go.uber.org/zap (used by the CLI)
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	dir, err := agent.NewDirectory(ctx, loader, nil, func(o *agent.DirectoryOptions) { o.Logger = logger })
//
// Messages are dotted event names ("agent.chat.error", "tool.call.start")
// followed by key/value pairs.
package logging

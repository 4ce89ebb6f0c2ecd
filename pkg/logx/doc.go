// Package logx configures hydrobot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured and rotated by lumberjack
//   - An optional admin chat sink (min-level + rate limiting)
package logx

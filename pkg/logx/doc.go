// Package logx is the structured logging layer of alertbot.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - console output readable (short timestamp and caller)
//   - file output JSON-structured and rotated by lumberjack
//   - an optional admin-chat sink for warnings (min level, rate limited)
package logx

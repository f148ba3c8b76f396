// Package logx configures remindbot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - Console output stays readable (short timestamp + file:line caller)
//   - File output is JSON, one event per line
//   - An optional Telegram sink forwards warnings to a log chat, rate limited
package logx

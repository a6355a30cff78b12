// Package logx is the structured logging facade used across schedbot.
//
// It wraps zerolog, keeps loggers live across configuration reloads and
// fans log lines out to console, file and an optional operator chat.
package logx

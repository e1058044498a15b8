package clog

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"
)

type Level int

const (
	LevelDebug Level = iota + 1
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) Slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Log writes msg at l using the default logger.
func Log(ctx context.Context, l Level, msg string, args ...any) {
	slog.Log(ctx, l.Slog(), msg, args...)
}

func HTTPStatusToLevel(status int) Level {
	switch {
	case status == 499:
		return LevelInfo
	case status >= 100 && status < 400:
		return LevelInfo
	case status >= 400 && status < 500:
		return LevelWarn
	default:
		return LevelError
	}
}

// Codes a client can cause on its own are not worth an error-level line.
var infoConnectCodes = map[connect.Code]bool{
	connect.CodeCanceled:           true,
	connect.CodeInvalidArgument:    true,
	connect.CodeDeadlineExceeded:   true,
	connect.CodeNotFound:           true,
	connect.CodeAlreadyExists:      true,
	connect.CodePermissionDenied:   true,
	connect.CodeFailedPrecondition: true,
	connect.CodeAborted:            true,
	connect.CodeOutOfRange:         true,
	connect.CodeUnauthenticated:    true,
}

func ConnectCodeToLevel(code connect.Code) Level {
	if infoConnectCodes[code] {
		return LevelInfo
	}
	return LevelError
}

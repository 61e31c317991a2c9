package feishu

import (
	"context"
	"fmt"
	"log/slog"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

// sdkLogger routes Lark SDK log lines into slog.
type sdkLogger struct {
	logger *slog.Logger
}

var _ larkcore.Logger = (*sdkLogger)(nil)

func newSDKLogger(log *slog.Logger) *sdkLogger {
	if log == nil {
		log = slog.Default()
	}
	return &sdkLogger{logger: log.With(slog.String("component", "lark_sdk"))}
}

func (l *sdkLogger) Debug(ctx context.Context, args ...interface{}) {
	l.logger.DebugContext(ctx, fmt.Sprint(args...))
}

func (l *sdkLogger) Info(ctx context.Context, args ...interface{}) {
	l.logger.InfoContext(ctx, fmt.Sprint(args...))
}

func (l *sdkLogger) Warn(ctx context.Context, args ...interface{}) {
	l.logger.WarnContext(ctx, fmt.Sprint(args...))
}

func (l *sdkLogger) Error(ctx context.Context, args ...interface{}) {
	l.logger.ErrorContext(ctx, fmt.Sprint(args...))
}

// Package trace 在 context 中传递 trace ID，并持有进程级 zap 日志；每行带 trace=id 便于排查。
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey int

const traceIDKey ctxKey = 0

// 日志行时间格式，与原 "%(asctime)s - %(message)s" 对齐
const timeLayout = "2006-01-02 15:04:05.000"

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

func NewTraceID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "0"
	}
	return hex.EncodeToString(b)
}

var (
	logMu  sync.RWMutex
	logger = zap.NewNop()
)

// Init 启动时调用一次：同时写控制台与追加写入 logFile（为空则仅控制台）。
// 返回的 flush 在进程退出前调用。
func Init(logFile string, debug bool) (flush func(), err error) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " - ",
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level),
	}
	var f *os.File
	if logFile != "" {
		f, err = os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", logFile, err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(f), level))
	}
	l := zap.New(zapcore.NewTee(cores...))
	SetLogger(l)
	return func() {
		_ = l.Sync()
		if f != nil {
			_ = f.Close()
		}
	}, nil
}

// SetLogger 替换进程级 logger，测试用 observer 接管。
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

func L() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

func write(ctx context.Context, level zapcore.Level, format string, args ...interface{}) {
	id := TraceID(ctx)
	if id == "" {
		id = "-"
	}
	l := L()
	if ce := l.Check(level, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write(zap.String("trace", id))
	}
}

// Log 打 INFO 日志
func Log(ctx context.Context, format string, args ...interface{}) {
	write(ctx, zapcore.InfoLevel, format, args...)
}

func Debug(ctx context.Context, format string, args ...interface{}) {
	write(ctx, zapcore.DebugLevel, format, args...)
}

func Warn(ctx context.Context, format string, args ...interface{}) {
	write(ctx, zapcore.WarnLevel, format, args...)
}

func Error(ctx context.Context, format string, args ...interface{}) {
	write(ctx, zapcore.ErrorLevel, format, args...)
}

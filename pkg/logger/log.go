package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Log struct {
	*slog.LevelVar
	*slog.Logger
}

// Logger 全局日志实例，默认输出到 stderr，stdout 留给命令结果
var Logger *Log

func init() {
	Logger = New(os.Stderr)
	Logger.SetLogLevel("warn")
}

// New 创建一个写入 w 的日志实例
func New(w io.Writer) *Log {
	level := &slog.LevelVar{}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: slog.TimeValue(a.Value.Time())}
			}
			return a
		},
	}
	return &Log{
		LevelVar: level,
		Logger:   slog.New(slog.NewTextHandler(w, opts)),
	}
}

// SetLogLevel 按名称调整级别，未知名称忽略
func (l *Log) SetLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l.Set(slog.LevelDebug)
	case "info":
		l.Set(slog.LevelInfo)
	case "warn":
		l.Set(slog.LevelWarn)
	case "error":
		l.Set(slog.LevelError)
	}
}

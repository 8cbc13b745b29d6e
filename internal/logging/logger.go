package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger 全局结构化日志器
var Logger = slog.Default()

// InitLogger 初始化结构化日志并设为默认
func InitLogger(level, format string) *slog.Logger {
	return initLogger(os.Stdout, level, format)
}

func initLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if strings.EqualFold(format, "text") {
		// 文本格式，便于开发调试
		Logger = slog.New(slog.NewTextHandler(w, opts))
	} else {
		// JSON 格式，便于日志收集系统处理
		Logger = slog.New(slog.NewJSONHandler(w, opts))
	}

	slog.SetDefault(Logger)
	return Logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MaskURL 掩码 URL（保护密钥）
func MaskURL(url string) string {
	if len(url) > 20 {
		return url[:10] + "..." + url[len(url)-10:]
	}
	return url
}

/*
 * @module logger
 * @description 全局结构化日志初始化，JSON输出，级别由环境变量控制
 * @architecture 基础设施层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 进程启动 -> 读取LOG_LEVEL -> 注册默认logger
 * @rules 所有日志统一携带service属性，级别解析失败回落info
 * @dependencies log/slog
 * @refs main.go
 */

package logger

import (
	"log/slog"
	"os"
	"strings"
)

// parseLevel 解析LOG_LEVEL环境变量，未设置或非法时回落info
func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger 初始化全局日志记录器
// 创建 JSON 格式的日志处理器,输出到 stdout
func InitLogger() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	})
	logger := slog.New(handler).With("service", "certqa-service")
	slog.SetDefault(logger)
}

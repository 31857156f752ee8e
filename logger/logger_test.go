/*
 * @module logger_test
 * @description 日志级别解析测试
 * @architecture 测试层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 级别字符串 -> 解析 -> 断言
 * @rules 非法与空输入回落info
 * @dependencies testing, testify
 * @refs logger.go
 */

package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))

	// 未设置或非法值回落info
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

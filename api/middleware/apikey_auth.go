/*
 * @module api/middleware/apikey_auth
 * @description API密钥鉴权中间件，验证机器调用方携带的密钥
 * @architecture 中间件模式 - HTTP请求拦截和验证
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 密钥提取 -> 前缀定位+哈希比对 -> 上下文注入 -> 下一个处理器
 * @rules 白名单路径跳过鉴权；密钥无效统一返回401；验证成功将密钥记录注入上下文
 * @dependencies net/http, certqa-service/service/access
 * @refs service/access/apikey_service.go, api/routes.go
 */

package middleware

import (
	"certqa-service/service/access"
	"certqa-service/service/models"
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

// ContextKey 上下文键类型
type ContextKey string

// ApiKeyRecordKey 密钥记录在上下文中的键
const ApiKeyRecordKey ContextKey = "api_key_record"

// ApiKeyAuthMiddleware API密钥鉴权中间件
type ApiKeyAuthMiddleware struct {
	keyService *access.ApiKeyService
	// 白名单路径（不需要鉴权）
	whitelistPaths []string
}

// NewApiKeyAuthMiddleware 创建API密钥鉴权中间件实例
func NewApiKeyAuthMiddleware(keyService *access.ApiKeyService) *ApiKeyAuthMiddleware {
	return &ApiKeyAuthMiddleware{
		keyService: keyService,
		whitelistPaths: []string{
			"/health",  // 健康检查
			"/ready",   // 就绪检查
			"/swagger", // Swagger文档
			"/metrics", // Prometheus指标
			"/sse",     // SSE连接（浏览器EventSource无法携带自定义头）
		},
	}
}

// AddWhitelistPath 添加白名单路径
func (m *ApiKeyAuthMiddleware) AddWhitelistPath(path string) {
	m.whitelistPaths = append(m.whitelistPaths, path)
}

// IsWhitelistPath 检查路径是否在白名单中
func (m *ApiKeyAuthMiddleware) IsWhitelistPath(path string) bool {
	for _, whitelistPath := range m.whitelistPaths {
		// 支持前缀匹配
		if strings.HasPrefix(path, whitelistPath) {
			return true
		}
	}
	return false
}

// Middleware 鉴权中间件处理函数
func (m *ApiKeyAuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 检查是否在白名单中
		if m.IsWhitelistPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := extractKey(r)
		if key == "" {
			m.respondUnauthorized(w, r, "缺少API密钥")
			return
		}

		record, err := m.keyService.VerifyKey(key)
		if err != nil {
			m.respondUnauthorized(w, r, "API密钥无效或已过期")
			return
		}

		// 将密钥记录注入上下文
		ctx := context.WithValue(r.Context(), ApiKeyRecordKey, record)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractKey 从请求中提取API密钥
// 优先X-API-Key头，其次Authorization Bearer
func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// respondUnauthorized 返回401未授权响应
func (m *ApiKeyAuthMiddleware) respondUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	render.JSON(w, r, map[string]interface{}{
		"status":  http.StatusUnauthorized,
		"message": message,
		"error":   "Unauthorized",
	})
}

// GetApiKeyFromContext 从上下文中获取密钥记录
func GetApiKeyFromContext(ctx context.Context) (*models.ApiKey, bool) {
	record, ok := ctx.Value(ApiKeyRecordKey).(*models.ApiKey)
	return record, ok
}

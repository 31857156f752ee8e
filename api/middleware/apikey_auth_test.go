/*
 * @module api/middleware/apikey_auth_test
 * @description API密钥鉴权中间件单元测试
 * @architecture 测试层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 测试准备 -> 请求构建 -> 响应验证
 * @rules 白名单路径放行；无密钥与坏密钥统一401
 * @dependencies testing, net/http/httptest, stretchr/testify
 */

package middleware

import (
	"certqa-service/service/access"
	"certqa-service/testutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMiddleware 构建测试用中间件与已签发密钥
func newTestMiddleware(t *testing.T) (*ApiKeyAuthMiddleware, string, func()) {
	testDB := testutil.NewTestDB()
	keyService := access.NewApiKeyService(testDB.DB)
	plaintext, _, err := keyService.IssueKey("test-key", "tester", nil)
	require.NoError(t, err)
	return NewApiKeyAuthMiddleware(keyService), plaintext, testDB.Close
}

// TestWhitelistPathSkipsAuth 测试白名单路径跳过鉴权
func TestWhitelistPathSkipsAuth(t *testing.T) {
	m, _, cleanup := newTestMiddleware(t)
	defer cleanup()

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready", "/metrics", "/sse/company-1", "/swagger/index.html"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "白名单路径 %s 应放行", path)
	}
}

// TestMissingKeyRejected 测试缺少密钥返回401
func TestMissingKeyRejected(t *testing.T) {
	m, _, cleanup := newTestMiddleware(t)
	defer cleanup()

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("未鉴权请求不应到达处理器")
	}))

	req := httptest.NewRequest(http.MethodGet, "/qa/requirements", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestInvalidKeyRejected 测试无效密钥返回401
func TestInvalidKeyRejected(t *testing.T) {
	m, _, cleanup := newTestMiddleware(t)
	defer cleanup()

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("未鉴权请求不应到达处理器")
	}))

	req := httptest.NewRequest(http.MethodGet, "/qa/requirements", nil)
	req.Header.Set("X-API-Key", "cqa_0000definitely-not-a-key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestValidKeyInjectsRecord 测试有效密钥注入上下文
func TestValidKeyInjectsRecord(t *testing.T) {
	m, plaintext, cleanup := newTestMiddleware(t)
	defer cleanup()

	var reached bool
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record, ok := GetApiKeyFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "test-key", record.Name)
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	// X-API-Key头
	req := httptest.NewRequest(http.MethodGet, "/qa/requirements", nil)
	req.Header.Set("X-API-Key", plaintext)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, reached)

	// Authorization Bearer
	reached = false
	req = httptest.NewRequest(http.MethodGet, "/qa/reviews", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, reached)
}

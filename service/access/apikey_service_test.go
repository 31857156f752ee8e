/*
 * @module service/access/apikey_service_test
 * @description API密钥服务测试，覆盖签发、验证、过期与吊销
 * @architecture 测试层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 密钥签发 -> 验证 -> 吊销 -> 再验证
 * @rules 明文密钥仅签发时返回一次，库中只存bcrypt哈希
 * @dependencies testing, testify, certqa-service/testutil
 * @refs apikey_service.go
 */

package access

import (
	"certqa-service/service/models"
	"certqa-service/testutil"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// ApiKeyServiceTestSuite API密钥服务测试套件
type ApiKeyServiceTestSuite struct {
	suite.Suite
	testDB  *testutil.TestDB
	service *ApiKeyService
}

// SetupSuite 设置测试套件
func (suite *ApiKeyServiceTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.service = NewApiKeyService(suite.testDB.DB)
}

// TearDownSuite 清理测试套件
func (suite *ApiKeyServiceTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

// SetupTest 设置每个测试
func (suite *ApiKeyServiceTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

func (suite *ApiKeyServiceTestSuite) TestIssueAndVerify() {
	plaintext, record, err := suite.service.IssueKey("ci-pipeline", "admin", nil)
	suite.Require().NoError(err)
	suite.NotEmpty(record.ID)
	suite.Equal(plaintext[:8], record.KeyPrefix)
	// 库中不存明文
	suite.NotEqual(plaintext, record.KeyValueHash)

	verified, err := suite.service.VerifyKey(plaintext)
	suite.NoError(err)
	suite.Equal(record.ID, verified.ID)

	// 验证命中后更新最后使用时间
	var persisted models.ApiKey
	suite.NoError(suite.testDB.DB.First(&persisted, "id = ?", record.ID).Error)
	suite.NotNil(persisted.LastUsedAt)
}

func (suite *ApiKeyServiceTestSuite) TestVerifyRejectsBadKeys() {
	plaintext, _, err := suite.service.IssueKey("ci-pipeline", "admin", nil)
	suite.Require().NoError(err)

	_, err = suite.service.VerifyKey("short")
	suite.ErrorIs(err, ErrInvalidApiKey)

	// 前缀正确但密钥体错误
	_, err = suite.service.VerifyKey(plaintext[:8] + "tampered")
	suite.ErrorIs(err, ErrInvalidApiKey)
}

func (suite *ApiKeyServiceTestSuite) TestExpiredKeyRejected() {
	expired := time.Now().Add(-time.Hour)
	plaintext, _, err := suite.service.IssueKey("old-key", "admin", &expired)
	suite.Require().NoError(err)

	_, err = suite.service.VerifyKey(plaintext)
	suite.ErrorIs(err, ErrInvalidApiKey)
}

func (suite *ApiKeyServiceTestSuite) TestRevokeKey() {
	plaintext, record, err := suite.service.IssueKey("to-revoke", "admin", nil)
	suite.Require().NoError(err)

	suite.NoError(suite.service.RevokeKey(record.ID))
	_, err = suite.service.VerifyKey(plaintext)
	suite.ErrorIs(err, ErrInvalidApiKey)

	suite.Error(suite.service.RevokeKey("missing-id"))
}

// TestApiKeyServiceSuite 运行API密钥服务测试套件
func TestApiKeyServiceSuite(t *testing.T) {
	suite.Run(t, new(ApiKeyServiceTestSuite))
}

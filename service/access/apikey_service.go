/*
 * @module service/access/apikey_service
 * @description API密钥服务，密钥签发与验证，保护QA引擎HTTP操作面
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 密钥签发 -> bcrypt哈希入库 -> 请求携带 -> 前缀定位+哈希比对
 * @rules 明文密钥仅签发时返回一次；验证按前缀定位候选后逐一比对哈希
 * @dependencies gorm.io/gorm, golang.org/x/crypto/bcrypt, service/models
 * @refs api/middleware/apikey_auth.go
 */

package access

import (
	"certqa-service/service/models"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidApiKey API密钥无效
var ErrInvalidApiKey = errors.New("API密钥无效或已过期")

// ApiKeyService API密钥服务
type ApiKeyService struct {
	db *gorm.DB
}

// NewApiKeyService 创建API密钥服务实例
func NewApiKeyService(db *gorm.DB) *ApiKeyService {
	return &ApiKeyService{db: db}
}

// IssueKey 签发API密钥，返回明文密钥（仅此一次）
func (s *ApiKeyService) IssueKey(name, createdBy string, expiresAt *time.Time) (string, *models.ApiKey, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("密钥生成失败: %w", err)
	}
	fullKey := "cqa_" + hex.EncodeToString(raw)

	hashed, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("密钥哈希失败: %w", err)
	}

	key := &models.ApiKey{
		Name:         name,
		KeyPrefix:    fullKey[:8],
		KeyValueHash: string(hashed),
		CreatedBy:    createdBy,
		ExpiresAt:    expiresAt,
	}
	if err := s.db.Create(key).Error; err != nil {
		return "", nil, err
	}
	return fullKey, key, nil
}

// VerifyKey 验证API密钥
// 按前缀定位候选集后逐一比对bcrypt哈希，命中后更新最后使用时间
func (s *ApiKeyService) VerifyKey(keyValue string) (*models.ApiKey, error) {
	if len(keyValue) < 8 {
		return nil, ErrInvalidApiKey
	}

	var candidates []models.ApiKey
	if err := s.db.Where("key_prefix = ? AND status = ?", keyValue[:8], "active").
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range candidates {
		key := &candidates[i]
		if !key.IsUsable(now) {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(key.KeyValueHash), []byte(keyValue)); err == nil {
			s.db.Model(&models.ApiKey{}).Where("id = ?", key.ID).
				Update("last_used_at", &now)
			return key, nil
		}
	}
	return nil, ErrInvalidApiKey
}

// RevokeKey 吊销API密钥
func (s *ApiKeyService) RevokeKey(id string) error {
	result := s.db.Model(&models.ApiKey{}).Where("id = ?", id).Update("status", "revoked")
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("密钥不存在")
	}
	return nil
}

/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责QA引擎全部表结构迁移与基础数据初始化
 * @architecture 分层架构 - 数据访问层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 应用启动 -> 表结构迁移 -> 基础数据初始化
 * @rules 迁移幂等，可重复执行；基础数据仅在缺失时写入
 * @dependencies gorm.io/gorm, service/models, service/meta
 * @refs service/init.go
 */

package database

import (
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
)

// AutoMigrate 迁移全部表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Company{},
		&models.User{},
		&models.WorkItem{},
		&models.Subdivision{},
		&models.QARequirement{},
		&models.QAReview{},
		&models.ReviewNote{},
		&models.ObservationType{},
		&models.Observation{},
		&models.ReviewTransition{},
		&models.Notification{},
		&models.ApiKey{},
		&models.SystemConfig{},
	)
}

// InitializeData 初始化基础数据
// 网关专项通知白名单缺失时写入默认值；内置意见类型字典按需补齐
func InitializeData(db *gorm.DB) error {
	if err := seedGatingNoticeConfig(db); err != nil {
		return err
	}
	return seedObservationTypes(db)
}

// seedGatingNoticeConfig 写入网关专项通知白名单默认配置
func seedGatingNoticeConfig(db *gorm.DB) error {
	var cfg models.SystemConfig
	err := db.First(&cfg, "key = ?", meta.ConfigKeyGatingNoticePrograms).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	value, err := json.Marshal(meta.DefaultGatingNoticePrograms)
	if err != nil {
		return err
	}
	return db.Create(&models.SystemConfig{
		Key:         meta.ConfigKeyGatingNoticePrograms,
		Value:       string(value),
		Description: "网关失败专项通知的项目白名单，由运营方维护",
	}).Error
}

// seedObservationTypes 补齐内置意见类型字典
func seedObservationTypes(db *gorm.DB) error {
	builtin := []models.ObservationType{
		{Name: "documentation_gap", Description: "资料缺失或不完整"},
		{Name: "scoring_discrepancy", Description: "评分与实测不符"},
		{Name: "installation_defect", Description: "安装缺陷"},
		{Name: "verification_error", Description: "验证流程错误"},
	}
	for _, ot := range builtin {
		var existing models.ObservationType
		err := db.First(&existing, "name = ?", ot.Name).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Create(&ot).Error; err != nil {
			return err
		}
	}
	return nil
}

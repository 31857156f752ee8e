/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, time
 * @refs service/models
 */

package testutil

import (
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
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
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	// 清空所有表的数据
	tables := []string{
		"qa_observations",
		"qa_review_notes",
		"qa_review_transitions",
		"qa_reviews",
		"qa_requirements",
		"qa_work_items",
		"qa_subdivisions",
		"qa_notifications",
		"qa_observation_types",
		"qa_api_keys",
		"qa_users",
		"qa_companies",
		"system_configs",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// CompanyOption 公司选项函数类型
type CompanyOption func(*models.Company)

// CreateCompany 创建测试公司
func (f *TestDataFactory) CreateCompany(opts ...CompanyOption) *models.Company {
	company := &models.Company{
		Name: "测试公司_" + generateSuffix(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(company)
	}

	if err := f.DB.Create(company).Error; err != nil {
		panic(fmt.Sprintf("failed to create test company: %v", err))
	}

	return company
}

// UserOption 用户选项函数类型
type UserOption func(*models.User)

// WithSuperOperator 设置为超级操作员
func WithSuperOperator() UserOption {
	return func(u *models.User) {
		u.IsSuperOperator = true
	}
}

// CreateUser 创建测试用户
func (f *TestDataFactory) CreateUser(companyID string, opts ...UserOption) *models.User {
	user := &models.User{
		UserName:  "test_user_" + generateSuffix(),
		CompanyID: companyID,
	}

	// 应用选项
	for _, opt := range opts {
		opt(user)
	}

	if err := f.DB.Create(user).Error; err != nil {
		panic(fmt.Sprintf("failed to create test user: %v", err))
	}

	return user
}

// WorkItemOption 工作项选项函数类型
type WorkItemOption func(*models.WorkItem)

// WithWorkItemState 设置工作项状态
func WithWorkItemState(state string) WorkItemOption {
	return func(w *models.WorkItem) {
		w.State = state
	}
}

// WithProgram 设置工作项所属项目
func WithProgram(slug string) WorkItemOption {
	return func(w *models.WorkItem) {
		w.ProgramSlug = slug
	}
}

// WithCertificationDate 设置认证日期
func WithCertificationDate(t time.Time) WorkItemOption {
	return func(w *models.WorkItem) {
		w.CertificationDate = &t
	}
}

// CreateWorkItem 创建测试工作项
func (f *TestDataFactory) CreateWorkItem(companyID string, opts ...WorkItemOption) *models.WorkItem {
	item := &models.WorkItem{
		HomeID:          "home_" + generateSuffix(),
		ProgramSlug:     "green-build-2020",
		State:           meta.WorkItemStatePendingInspection,
		CompanyID:       companyID,
		RatingCompanyID: companyID,
		CreatedBy:       "test",
		UpdatedBy:       "test",
	}

	// 应用选项
	for _, opt := range opts {
		opt(item)
	}

	if err := f.DB.Create(item).Error; err != nil {
		panic(fmt.Sprintf("failed to create test work item: %v", err))
	}

	return item
}

// SubdivisionOption 批次选项函数类型
type SubdivisionOption func(*models.Subdivision)

// CreateSubdivision 创建测试批次
func (f *TestDataFactory) CreateSubdivision(companyID string, opts ...SubdivisionOption) *models.Subdivision {
	sub := &models.Subdivision{
		Name:        "测试批次_" + generateSuffix(),
		CompanyID:   companyID,
		ProgramSlug: "green-build-2020",
		CreatedBy:   "test",
		UpdatedBy:   "test",
	}

	// 应用选项
	for _, opt := range opts {
		opt(sub)
	}

	if err := f.DB.Create(sub).Error; err != nil {
		panic(fmt.Sprintf("failed to create test subdivision: %v", err))
	}

	return sub
}

// RequirementOption 策略选项函数类型
type RequirementOption func(*models.QARequirement)

// WithReviewType 设置策略审查类型
func WithReviewType(reviewType string) RequirementOption {
	return func(r *models.QARequirement) {
		r.Type = reviewType
	}
}

// WithCoveragePct 设置目标覆盖比例
func WithCoveragePct(pct float64) RequirementOption {
	return func(r *models.QARequirement) {
		r.CoveragePct = pct
	}
}

// WithGating 开启认证门控
func WithGating() RequirementOption {
	return func(r *models.QARequirement) {
		r.GateCertification = true
	}
}

// WithRequirementProgram 设置策略所属项目
func WithRequirementProgram(slug string) RequirementOption {
	return func(r *models.QARequirement) {
		r.ProgramSlug = slug
	}
}

// CreateRequirement 创建测试策略
func (f *TestDataFactory) CreateRequirement(companyID string, opts ...RequirementOption) *models.QARequirement {
	req := &models.QARequirement{
		CompanyID:   companyID,
		ProgramSlug: "green-build-2020",
		Type:        meta.ReviewTypeFile,
		CoveragePct: 1,
		CreatedBy:   "test",
		UpdatedBy:   "test",
	}

	// 应用选项
	for _, opt := range opts {
		opt(req)
	}

	if err := f.DB.Create(req).Error; err != nil {
		panic(fmt.Sprintf("failed to create test requirement: %v", err))
	}

	return req
}

// ReviewOption 审查选项函数类型
type ReviewOption func(*models.QAReview)

// WithReviewState 设置审查状态
func WithReviewState(state string) ReviewOption {
	return func(r *models.QAReview) {
		r.State = state
	}
}

// WithResult 设置审查结论
func WithResult(result string) ReviewOption {
	return func(r *models.QAReview) {
		r.Result = &result
	}
}

// WithSubdivisionSubject 改用批次作为审查主体
func WithSubdivisionSubject(subdivisionID string) ReviewOption {
	return func(r *models.QAReview) {
		r.WorkItemID = nil
		r.SubdivisionID = &subdivisionID
	}
}

// CreateReview 创建测试审查
func (f *TestDataFactory) CreateReview(requirement *models.QARequirement, workItemID string, opts ...ReviewOption) *models.QAReview {
	review := &models.QAReview{
		RequirementID:  requirement.ID,
		WorkItemID:     &workItemID,
		State:          meta.ReviewStateReceived,
		OwnerCompanyID: requirement.CompanyID,
		CreatedBy:      "test",
		UpdatedBy:      "test",
	}

	// 应用选项
	for _, opt := range opts {
		opt(review)
	}

	if err := f.DB.Create(review).Error; err != nil {
		panic(fmt.Sprintf("failed to create test review: %v", err))
	}

	return review
}

// CreateObservationType 创建测试意见类型
func (f *TestDataFactory) CreateObservationType(name string) *models.ObservationType {
	ot := &models.ObservationType{
		Name:        name,
		Description: "测试意见类型",
	}
	if err := f.DB.Create(ot).Error; err != nil {
		panic(fmt.Sprintf("failed to create test observation type: %v", err))
	}
	return ot
}

// 辅助函数
var suffixCounter int64
var suffixMu sync.Mutex

func generateSuffix() string {
	suffixMu.Lock()
	defer suffixMu.Unlock()
	suffixCounter++
	return fmt.Sprintf("%d_%d", time.Now().UnixNano()%100000, suffixCounter)
}

// SentNotification 记录通知器捕获的一次通知
type SentNotification struct {
	RecipientRole string
	MessageType   string
	Context       map[string]interface{}
}

// RecordingNotifier 记录通知器，捕获全部通知供断言
type RecordingNotifier struct {
	mu   sync.Mutex
	Sent []SentNotification
}

// NewRecordingNotifier 创建记录通知器实例
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// Send 实现qa.Notifier接口
func (n *RecordingNotifier) Send(recipientRole, messageType string, context map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, SentNotification{
		RecipientRole: recipientRole,
		MessageType:   messageType,
		Context:       context,
	})
}

// MessagesOfType 按消息类型过滤已捕获的通知
func (n *RecordingNotifier) MessagesOfType(messageType string) []SentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var matched []SentNotification
	for _, s := range n.Sent {
		if s.MessageType == messageType {
			matched = append(matched, s)
		}
	}
	return matched
}

// Reset 清空已捕获的通知
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = nil
}

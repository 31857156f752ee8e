/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、迁移、服务装配与后台组件启动
 * @architecture 分层架构 - 服务层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 应用启动 -> 数据库连接 -> 迁移 -> 服务装配 -> 回调接线 -> 后台组件启动
 * @rules 确保所有依赖服务正常启动后才提供API服务；回调接线避免包间循环依赖
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres
 * @refs api/routes.go, main.go
 */

package service

import (
	"certqa-service/service/access"
	"certqa-service/service/database"
	"certqa-service/service/distributed_lock"
	"certqa-service/service/event"
	"certqa-service/service/identity"
	"certqa-service/service/qa"
	"certqa-service/service/scheduler"
	"certqa-service/service/workitem"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB                       *gorm.DB
	GlobalEventService       *event.EventService
	GlobalRequirementService *qa.RequirementService
	GlobalReviewService      *qa.ReviewService
	GlobalStateMachine       *qa.StateMachine
	GlobalGatingCoordinator  *qa.GatingCoordinator
	GlobalCoverageCalculator *qa.CoverageCalculator
	GlobalReconciler         *qa.Reconciler
	GlobalWorkItemService    *workitem.Service
	GlobalApiKeyService      *access.ApiKeyService
	GlobalSweepScheduler     *scheduler.SweepScheduler
)

func init() {
	initDatabase()
	runMigrations()
	initServices()
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var dsn string

	// 优先使用DATABASE_URL环境变量
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		// 使用分离的环境变量构建连接字符串
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "postgres")
		dbname := getEnvWithDefault("DB_NAME", "postgres")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	log.Println("数据库连接成功")
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移
func runMigrations() {
	log.Println("开始运行数据库迁移...")

	if err := database.AutoMigrate(DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库表结构迁移完成")

	if err := database.InitializeData(DB); err != nil {
		log.Fatalf("基础数据初始化失败: %v", err)
	}
	log.Println("基础数据初始化完成")
}

// initServices 初始化服务
func initServices() {
	identityProvider := identity.NewGormProvider(DB)
	workItemProvider := workitem.NewGormProvider(DB)

	GlobalEventService = event.NewEventService(DB)
	GlobalCoverageCalculator = qa.NewCoverageCalculator(DB)
	GlobalRequirementService = qa.NewRequirementService(DB, identityProvider, GlobalCoverageCalculator)
	GlobalReviewService = qa.NewReviewService(DB, identityProvider, GlobalEventService)
	GlobalStateMachine = qa.NewStateMachine(DB, identityProvider, GlobalEventService)
	GlobalGatingCoordinator = qa.NewGatingCoordinator(DB, workItemProvider)
	GlobalWorkItemService = workitem.NewService(DB)
	GlobalApiKeyService = access.NewApiKeyService(DB)

	workers := 4
	if v, err := strconv.Atoi(os.Getenv("QA_RECONCILE_WORKERS")); err == nil && v > 0 {
		workers = v
	}
	GlobalReconciler = qa.NewReconciler(DB, GlobalStateMachine, GlobalGatingCoordinator,
		workItemProvider, GlobalCoverageCalculator, GlobalReviewService, GlobalEventService, workers)

	// 多实例部署时接入Redis分布式锁（去抖与执行防重）
	if os.Getenv("REDIS_HOST") != "" {
		lock, err := distributed_lock.NewRedisLock()
		if err != nil {
			log.Printf("Redis分布式锁初始化失败，退化为进程内去重: %v", err)
		} else {
			GlobalReconciler.SetDistributedLock(lock)
			log.Println("Redis分布式锁已接入")
		}
	}

	// 回调接线: 审查创建/状态转换/工作项变更均触发协调循环
	GlobalStateMachine.SetAfterTransitionHook(GlobalReconciler.EnqueueReview)
	GlobalReviewService.SetAfterCreateHook(GlobalReconciler.EnqueueReview)
	GlobalWorkItemService.SetHooks(
		func(workItemID string) {
			if err := GlobalReconciler.OnWorkItemCreated(workItemID); err != nil {
				log.Printf("新建工作项策略评估失败: %v", err)
			}
			GlobalReconciler.EnqueueWorkItem(workItemID)
		},
		GlobalReconciler.EnqueueWorkItem,
	)

	GlobalReconciler.Start()

	// 可选Kafka触发主题消费（外部系统发布协调触发）
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		groupID := getEnvWithDefault("KAFKA_GROUP_ID", "certqa-reconciler")
		go GlobalReconciler.ConsumeTriggers(strings.Split(brokers, ","), groupID)
	}

	// 周期清扫兜底，保证协调的至少一次语义
	GlobalSweepScheduler = scheduler.NewSweepScheduler(DB, GlobalReconciler)
	if err := GlobalSweepScheduler.Start(); err != nil {
		log.Printf("启动清扫调度器失败: %v", err)
	}

	log.Println("服务初始化完成")
}

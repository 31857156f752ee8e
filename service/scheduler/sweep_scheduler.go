/*
 * @module service/scheduler/sweep_scheduler
 * @description 协调清扫调度器，周期性将全部未完成审查重新入队协调，兜底保证至少一次语义
 * @architecture 基于Cron表达式的调度器模式
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 定时触发 -> 扫描未完成审查 -> 逐个入队协调
 * @rules 清扫与实时触发互为补充；协调循环的幂等性保证重复入队安全
 * @dependencies gorm.io/gorm, github.com/robfig/cron/v3, service/qa
 * @refs service/qa/reconciler.go, service/init.go
 */

package scheduler

import (
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"certqa-service/service/qa"
	"log"
	"os"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// SweepScheduler 协调清扫调度器
type SweepScheduler struct {
	db         *gorm.DB
	reconciler *qa.Reconciler
	cron       *cron.Cron
}

// NewSweepScheduler 创建清扫调度器实例
func NewSweepScheduler(db *gorm.DB, reconciler *qa.Reconciler) *SweepScheduler {
	return &SweepScheduler{
		db:         db,
		reconciler: reconciler,
		cron:       cron.New(cron.WithSeconds()),
	}
}

// Start 启动调度器
// 清扫周期通过QA_SWEEP_CRON配置，默认每10分钟一次
func (s *SweepScheduler) Start() error {
	spec := os.Getenv("QA_SWEEP_CRON")
	if spec == "" {
		spec = "0 */10 * * * *"
	}

	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		log.Printf("清扫任务注册失败: %v", err)
		return err
	}

	s.cron.Start()
	log.Printf("协调清扫调度器已启动, cron=%s", spec)
	return nil
}

// Stop 停止调度器
func (s *SweepScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("协调清扫调度器已停止")
}

// sweep 扫描全部未完成审查并重新入队
func (s *SweepScheduler) sweep() {
	var reviewIDs []string
	err := s.db.Model(&models.QAReview{}).
		Where("state <> ?", meta.ReviewStateComplete).
		Pluck("id", &reviewIDs).Error
	if err != nil {
		log.Printf("清扫扫描失败: %v", err)
		return
	}

	for _, id := range reviewIDs {
		s.reconciler.EnqueueReview(id)
	}
	if len(reviewIDs) > 0 {
		log.Printf("清扫完成, 入队%d条未完成审查", len(reviewIDs))
	}
}

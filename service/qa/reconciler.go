/*
 * @module service/qa/reconciler
 * @description 协调循环，幂等可重入的后台任务: 推进自动转换、重算门控、发出抽检建议
 * @architecture 工作池 + 触发队列（进程内通道，另可消费Kafka触发主题），至少一次投递
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 触发入队 -> 去抖 -> 工作协程执行 -> 自动转换/门控重算
 * @rules 每一步幂等且与触发顺序无关；执行前重读持久化状态；对象已删除时记录日志并丢弃；重复触发安全吸收
 * @dependencies gorm.io/gorm, github.com/segmentio/kafka-go, service/distributed_lock
 * @refs service/qa/state_machine.go, service/qa/gating.go, service/scheduler/sweep_scheduler.go
 */

package qa

import (
	"certqa-service/service/distributed_lock"
	"certqa-service/service/identity"
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"certqa-service/service/workitem"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

// ReconcileTriggerTopic 协调触发的Kafka主题
const ReconcileTriggerTopic = "qa.reconcile.triggers"

// 触发目标类型
const (
	TriggerKindReview   = "review"
	TriggerKindWorkItem = "work_item"
)

// reconcileTrigger 协调触发消息
type reconcileTrigger struct {
	Kind string `json:"kind"` // review / work_item
	ID   string `json:"id"`
}

// Reconciler 协调循环
type Reconciler struct {
	db            *gorm.DB
	machine       *StateMachine
	gating        *GatingCoordinator
	provider      workitem.Provider
	coverage      *CoverageCalculator
	reviewService *ReviewService
	notifier      Notifier

	queue   chan reconcileTrigger
	lock    distributed_lock.DistributedLock // 可为nil，单实例部署时退化为进程内去重
	workers int
	ctx     context.Context
	cancel  context.CancelFunc

	// debounceWindow 高频上游信号的去抖窗口，不影响至少一次语义（由周期清扫兜底）
	debounceWindow time.Duration
}

// NewReconciler 创建协调循环实例
func NewReconciler(db *gorm.DB, machine *StateMachine, gating *GatingCoordinator,
	provider workitem.Provider, coverage *CoverageCalculator,
	reviewService *ReviewService, notifier Notifier, workers int) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		db:             db,
		machine:        machine,
		gating:         gating,
		provider:       provider,
		coverage:       coverage,
		reviewService:  reviewService,
		notifier:       notifier,
		queue:          make(chan reconcileTrigger, 1024),
		workers:        workers,
		ctx:            ctx,
		cancel:         cancel,
		debounceWindow: 2 * time.Second,
	}
}

// SetDistributedLock 注入分布式锁，用于多实例部署下的触发去抖与执行防重
func (r *Reconciler) SetDistributedLock(lock distributed_lock.DistributedLock) {
	r.lock = lock
}

// Start 启动工作池
func (r *Reconciler) Start() {
	for i := 0; i < r.workers; i++ {
		go r.worker()
	}
	slog.Info("协调循环工作池已启动", "workers", r.workers)
}

// Stop 停止协调循环
func (r *Reconciler) Stop() {
	r.cancel()
}

// EnqueueReview 审查触发入队
func (r *Reconciler) EnqueueReview(reviewID string) {
	r.enqueue(reconcileTrigger{Kind: TriggerKindReview, ID: reviewID})
}

// EnqueueWorkItem 工作项触发入队
func (r *Reconciler) EnqueueWorkItem(workItemID string) {
	r.enqueue(reconcileTrigger{Kind: TriggerKindWorkItem, ID: workItemID})
}

// enqueue 非阻塞入队，队列满时丢弃（周期清扫兜底保证至少一次）
func (r *Reconciler) enqueue(trigger reconcileTrigger) {
	if r.debounced(trigger) {
		return
	}
	select {
	case r.queue <- trigger:
	default:
		slog.Warn("协调队列已满，触发丢弃待清扫兜底", "kind", trigger.Kind, "id", trigger.ID)
	}
}

// debounced 去抖判定: 窗口内的重复触发被吸收
// 去抖标记获取失败一律按未去抖处理，宁可重复不可丢失
func (r *Reconciler) debounced(trigger reconcileTrigger) bool {
	if r.lock == nil || r.debounceWindow <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(r.ctx, time.Second)
	defer cancel()
	acquired, err := r.lock.TryLock(ctx, "qa:reconcile:debounce:"+trigger.Kind+":"+trigger.ID, r.debounceWindow)
	if err != nil {
		return false
	}
	return !acquired
}

// worker 工作协程
func (r *Reconciler) worker() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case trigger := <-r.queue:
			r.dispatch(trigger)
		}
	}
}

// dispatch 执行一次触发，多实例下以分布式锁防止同一目标并发执行
func (r *Reconciler) dispatch(trigger reconcileTrigger) {
	lockKey := "qa:reconcile:run:" + trigger.Kind + ":" + trigger.ID
	if r.lock != nil {
		ctx, cancel := context.WithTimeout(r.ctx, time.Second)
		acquired, err := r.lock.TryLock(ctx, lockKey, 30*time.Second)
		cancel()
		if err == nil && !acquired {
			// 他处正在处理同一目标，幂等性保证本次可安全跳过
			reconcileTotal.WithLabelValues(trigger.Kind, "skipped_locked").Inc()
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = r.lock.Unlock(ctx, lockKey)
		}()
	}

	var err error
	switch trigger.Kind {
	case TriggerKindReview:
		err = r.ReconcileReview(trigger.ID)
	case TriggerKindWorkItem:
		err = r.ReconcileWorkItem(trigger.ID)
	default:
		slog.Warn("未知协调触发类型", "kind", trigger.Kind)
		return
	}
	if err != nil {
		reconcileTotal.WithLabelValues(trigger.Kind, "error").Inc()
		slog.Error("协调执行失败", "kind", trigger.Kind, "id", trigger.ID, "error", err)
		return
	}
	reconcileTotal.WithLabelValues(trigger.Kind, "ok").Inc()
}

// ReconcileReview 协调单个审查实例，幂等
// 1. received且工作项已过待检阶段 -> 自动转入in_progress
// 2. 重算关联工作项门控，通过则请求推进
// 审查已删除: 记录日志后丢弃
func (r *Reconciler) ReconcileReview(reviewID string) error {
	var review models.QAReview
	if err := r.db.First(&review, "id = ?", reviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Info("协调目标审查已不存在，丢弃", "review_id", reviewID)
			return nil
		}
		return err
	}

	if review.State == meta.ReviewStateReceived && review.WorkItemID != nil {
		past, err := r.provider.IsPastInspectionStage(*review.WorkItemID)
		if err != nil && !errors.Is(err, workitem.ErrWorkItemNotFound) {
			return err
		}
		if past {
			_, err := r.machine.Transition(&TransitionRequest{
				ReviewID:   review.ID,
				Transition: meta.TransitionReceivedToInProgress,
				ActorID:    identity.SystemActorID,
			})
			// 自动转换失败只跳过不报错: 并发协调下状态可能已被推进
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				return err
			}
			if err != nil {
				slog.Debug("自动转换跳过", "review_id", review.ID, "reason", err)
			}
		}
	}

	if review.WorkItemID != nil {
		if _, err := r.gating.AttemptAdvanceIfEligible(*review.WorkItemID); err != nil {
			if errors.Is(err, workitem.ErrWorkItemNotFound) {
				slog.Info("协调门控: 工作项已不存在，丢弃", "work_item_id", *review.WorkItemID)
				return nil
			}
			return err
		}
	}
	return nil
}

// ReconcileWorkItem 协调单个工作项: 逐个协调其开启的审查，再重算门控
func (r *Reconciler) ReconcileWorkItem(workItemID string) error {
	var reviews []models.QAReview
	if err := r.db.Where("work_item_id = ?", workItemID).Find(&reviews).Error; err != nil {
		return err
	}
	for i := range reviews {
		if err := r.ReconcileReview(reviews[i].ID); err != nil {
			slog.Error("工作项协调: 审查协调失败", "review_id", reviews[i].ID, "error", err)
		}
	}
	if len(reviews) == 0 {
		// 无审查时门控仍需重算（网关策略未开审查不阻断）
		if _, err := r.gating.AttemptAdvanceIfEligible(workItemID); err != nil {
			if errors.Is(err, workitem.ErrWorkItemNotFound) {
				slog.Info("协调目标工作项已不存在，丢弃", "work_item_id", workItemID)
				return nil
			}
			return err
		}
	}
	return nil
}

// OnWorkItemCreated 工作项新建时评估全部适用策略
// 0 < coverage_pct < 1 且活跃覆盖率未超标时发送抽检建议通知（仅建议，不自动创建）；
// coverage_pct为1的全覆盖策略直接创建审查
func (r *Reconciler) OnWorkItemCreated(workItemID string) error {
	var item models.WorkItem
	if err := r.db.First(&item, "id = ?", workItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Info("新建工作项评估: 工作项已不存在，丢弃", "work_item_id", workItemID)
			return nil
		}
		return err
	}

	var reqs []models.QARequirement
	if err := r.db.Where("program_slug = ?", item.ProgramSlug).Find(&reqs).Error; err != nil {
		return err
	}

	for i := range reqs {
		req := &reqs[i]
		if !req.AppliesTo(&item) {
			continue
		}
		switch {
		case req.CoveragePct >= 1:
			_, err := r.reviewService.CreateReview(&CreateReviewRequest{
				RequirementID: req.ID,
				WorkItemID:    &item.ID,
				ActorID:       identity.SystemActorID,
			})
			if err != nil && !errors.Is(err, ErrAlreadyExists) {
				slog.Error("全覆盖策略自动创建审查失败", "requirement_id", req.ID, "error", err)
			}
		case req.CoveragePct > 0:
			if r.coverage.ActiveCoveragePct(req) <= req.CoveragePct {
				r.notifier.Send(meta.RecipientRoleReviewOwner, meta.MessageTypeReviewRecommended, map[string]interface{}{
					"requirement_id":       req.ID,
					"work_item_id":         item.ID,
					"program_slug":         item.ProgramSlug,
					"recipient_company_id": req.CompanyID,
					"coverage_pct":         req.CoveragePct,
				})
			}
		}
	}
	return nil
}

// ConsumeTriggers 消费Kafka触发主题，至少一次投递
// 消息解析失败仅记录，不中断消费
func (r *Reconciler) ConsumeTriggers(brokers []string, groupID string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    ReconcileTriggerTopic,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	defer reader.Close()

	slog.Info("协调触发Kafka消费启动", "topic", ReconcileTriggerTopic, "group", groupID)
	for {
		msg, err := reader.FetchMessage(r.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Error("协调触发消费失败", "error", err)
			time.Sleep(time.Second)
			continue
		}

		var trigger reconcileTrigger
		if err := json.Unmarshal(msg.Value, &trigger); err != nil {
			slog.Warn("协调触发消息解析失败", "error", err)
		} else {
			r.enqueue(trigger)
		}
		if err := reader.CommitMessages(r.ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("协调触发位点提交失败", "error", err)
		}
	}
}

// PublishTrigger 向Kafka触发主题发布一条协调触发
func PublishTrigger(ctx context.Context, brokers []string, kind, id string) error {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    ReconcileTriggerTopic,
		Balancer: &kafka.Hash{},
	}
	defer writer.Close()

	payload, err := json.Marshal(reconcileTrigger{Kind: kind, ID: id})
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, kafka.Message{Key: []byte(id), Value: payload})
}

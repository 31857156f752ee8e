/*
 * @module api/controllers/workitem_controller
 * @description 工作项API控制器，工作项创建、外部状态变更承接、门控资格查询与协调触发
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow HTTP请求 -> 业务逻辑处理 -> 协调触发 -> 响应返回
 * @rules 工作项状态机归外部认证系统所有，本控制器只承接其变更信号
 * @dependencies certqa-service/service, github.com/go-chi/render
 * @refs service/workitem/workitem_service.go, service/qa/gating.go
 */

package controllers

import (
	"certqa-service/service"
	"certqa-service/service/models"
	"certqa-service/service/qa"
	"certqa-service/service/workitem"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// WorkItemController 工作项控制器
type WorkItemController struct {
	service    *workitem.Service
	gating     *qa.GatingCoordinator
	reconciler *qa.Reconciler
}

// NewWorkItemController 创建工作项控制器实例
func NewWorkItemController() *WorkItemController {
	return &WorkItemController{
		service:    service.GlobalWorkItemService,
		gating:     service.GlobalGatingCoordinator,
		reconciler: service.GlobalReconciler,
	}
}

// CreateWorkItem 创建工作项
// @Summary 创建工作项
// @Description 登记一个认证工作项，创建后立即评估全部适用的审查策略
// @Tags 工作项
// @Accept json
// @Produce json
// @Param work_item body models.WorkItem true "工作项信息"
// @Success 200 {object} APIResponse{data=models.WorkItem}
// @Failure 400 {object} APIResponse
// @Router /qa/work-items [post]
func (c *WorkItemController) CreateWorkItem(w http.ResponseWriter, r *http.Request) {
	var item models.WorkItem
	if err := render.DecodeJSON(r.Body, &item); err != nil {
		render.Render(w, r, BadRequestResponse(fmt.Sprintf("请求参数格式错误:%s", err.Error()), nil))
		return
	}

	if err := c.service.CreateWorkItem(&item, actorID(r)); err != nil {
		render.Render(w, r, BadRequestResponse(err.Error(), nil))
		return
	}

	render.Render(w, r, SuccessResponse("创建成功", &item))
}

// GetWorkItem 获取工作项详情
// @Summary 获取工作项详情
// @Description 根据ID获取工作项详情
// @Tags 工作项
// @Produce json
// @Param id path string true "工作项ID"
// @Success 200 {object} APIResponse{data=models.WorkItem}
// @Failure 404 {object} APIResponse
// @Router /qa/work-items/{id} [get]
func (c *WorkItemController) GetWorkItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.Render(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	item, err := c.service.GetWorkItem(id)
	if err != nil {
		if errors.Is(err, workitem.ErrWorkItemNotFound) {
			render.Render(w, r, NotFoundResponse("工作项不存在", nil))
			return
		}
		render.Render(w, r, InternalErrorResponse("查询工作项失败", err.Error()))
		return
	}

	render.Render(w, r, SuccessResponse("查询成功", item))
}

// UpdateStateRequest 工作项状态变更请求体
type UpdateStateRequest struct {
	State string `json:"state" example:"inspection_complete"`
}

// UpdateWorkItemState 承接工作项状态变更
// @Summary 承接工作项状态变更
// @Description 外部认证系统通知工作项状态变化，变更后触发QA协调
// @Tags 工作项
// @Accept json
// @Produce json
// @Param id path string true "工作项ID"
// @Param request body UpdateStateRequest true "新状态"
// @Success 200 {object} APIResponse{data=models.WorkItem}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /qa/work-items/{id}/state [put]
func (c *WorkItemController) UpdateWorkItemState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body UpdateStateRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err.Error()))
		return
	}

	item, err := c.service.UpdateState(id, body.State, actorID(r))
	if err != nil {
		if errors.Is(err, workitem.ErrWorkItemNotFound) {
			render.Render(w, r, NotFoundResponse("工作项不存在", nil))
			return
		}
		render.Render(w, r, BadRequestResponse(err.Error(), nil))
		return
	}

	render.Render(w, r, SuccessResponse("状态已更新", item))
}

// EligibilityResponse 门控资格查询响应结构
type EligibilityResponse struct {
	WorkItemID string `json:"work_item_id"`
	Eligible   bool   `json:"eligible" example:"true"`
}

// GetEligibility 查询门控资格
// @Summary 查询门控资格
// @Description 判定工作项是否可向下一认证阶段推进，仅未完成的网关审查阻断
// @Tags 工作项
// @Produce json
// @Param id path string true "工作项ID"
// @Success 200 {object} APIResponse{data=EligibilityResponse}
// @Failure 404 {object} APIResponse
// @Router /qa/work-items/{id}/eligibility [get]
func (c *WorkItemController) GetEligibility(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	eligible, err := c.gating.IsEligibleToAdvance(id)
	if err != nil {
		if errors.Is(err, workitem.ErrWorkItemNotFound) {
			render.Render(w, r, NotFoundResponse("工作项不存在", nil))
			return
		}
		render.Render(w, r, InternalErrorResponse("门控资格查询失败", err.Error()))
		return
	}

	render.Render(w, r, SuccessResponse("查询成功", EligibilityResponse{
		WorkItemID: id,
		Eligible:   eligible,
	}))
}

// ReconcileWorkItem 手动触发工作项协调
// @Summary 手动触发工作项协调
// @Description 将工作项重新入队协调循环，幂等可重复调用
// @Tags 工作项
// @Produce json
// @Param id path string true "工作项ID"
// @Success 200 {object} APIResponse
// @Router /qa/work-items/{id}/reconcile [post]
func (c *WorkItemController) ReconcileWorkItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.Render(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	c.reconciler.EnqueueWorkItem(id)
	render.Render(w, r, SuccessResponse("协调已入队", map[string]interface{}{
		"work_item_id": id,
	}))
}

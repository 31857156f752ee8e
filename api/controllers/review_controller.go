/*
 * @module api/controllers/review_controller
 * @description 审查实例API控制器，审查CRUD、命名状态转换、备注与改派、协调触发
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow HTTP请求 -> 业务逻辑处理 -> 响应返回
 * @rules 状态转换经由命名转换端点，业务层哨兵错误映射为对应HTTP状态码
 * @dependencies certqa-service/service, github.com/go-chi/render
 * @refs service/qa/review_service.go, service/qa/state_machine.go
 */

package controllers

import (
	"certqa-service/service"
	"certqa-service/service/models"
	"certqa-service/service/qa"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ReviewController 审查实例控制器
type ReviewController struct {
	reviewService *qa.ReviewService
	stateMachine  *qa.StateMachine
	reconciler    *qa.Reconciler
}

// NewReviewController 创建审查控制器实例
func NewReviewController() *ReviewController {
	return &ReviewController{
		reviewService: service.GlobalReviewService,
		stateMachine:  service.GlobalStateMachine,
		reconciler:    service.GlobalReconciler,
	}
}

// CreateReview 创建审查实例
// @Summary 创建审查实例
// @Description 依据策略为工作项或批次开启一次审查，field类型同时维护影子工作项
// @Tags 审查实例
// @Accept json
// @Produce json
// @Param review body qa.CreateReviewRequest true "审查创建请求"
// @Success 200 {object} APIResponse{data=models.QAReview}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /qa/reviews [post]
func (c *ReviewController) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req qa.CreateReviewRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, BadRequestResponse(fmt.Sprintf("请求参数格式错误:%s", err.Error()), nil))
		return
	}
	if req.ActorID == "" {
		req.ActorID = actorID(r)
	}

	review, err := c.reviewService.CreateReview(&req)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("创建成功", review))
}

// GetReview 获取审查详情
// @Summary 获取审查详情
// @Description 加载审查实例及其备注、意见与转换历史，派生字段由关联记录重算
// @Tags 审查实例
// @Produce json
// @Param id path string true "审查ID"
// @Success 200 {object} APIResponse{data=models.QAReview}
// @Failure 404 {object} APIResponse
// @Router /qa/reviews/{id} [get]
func (c *ReviewController) GetReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.Render(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	review, err := c.reviewService.GetReview(id)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("查询成功", review))
}

// GetReviews 获取审查列表
// @Summary 获取审查列表
// @Description 分页获取审查实例列表，支持按审查方公司过滤
// @Tags 审查实例
// @Produce json
// @Param company_id query string false "审查方公司ID过滤"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Success 200 {object} PaginatedResponse{data=[]models.QAReview}
// @Failure 500 {object} APIResponse
// @Router /qa/reviews [get]
func (c *ReviewController) GetReviews(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)
	reviews, total, err := c.reviewService.ListReviews(r.URL.Query().Get("company_id"), page, size)
	if err != nil {
		render.Render(w, r, InternalErrorResponse("查询审查列表失败", err.Error()))
		return
	}

	render.Render(w, r, PageResponse("查询成功", reviews, total, page, size))
}

// DeleteReview 删除审查实例
// @Summary 删除审查实例
// @Description 删除审查及其审计链，已有终态结论的审查拒绝删除
// @Tags 审查实例
// @Produce json
// @Param id path string true "审查ID"
// @Success 200 {object} APIResponse
// @Failure 403 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /qa/reviews/{id} [delete]
func (c *ReviewController) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.Render(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	actor, ok := requireActor(r)
	if !ok {
		render.Render(w, r, ErrorResponse(http.StatusForbidden, "缺少有效的执行者标识", nil))
		return
	}

	if err := c.reviewService.DeleteReview(id, actor); err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("删除成功", nil))
}

// TransitionRequestBody 状态转换请求体
type TransitionRequestBody struct {
	Transition string       `json:"transition" example:"in_progress_to_complete"`
	Note       string       `json:"note,omitempty"`
	Payload    models.JSONB `json:"payload,omitempty"`
}

// TransitionReview 执行命名状态转换
// @Summary 执行命名状态转换
// @Description 对审查实例执行一次命名转换，终态转换携带结论与评分数据
// @Tags 审查实例
// @Accept json
// @Produce json
// @Param id path string true "审查ID"
// @Param request body TransitionRequestBody true "转换请求"
// @Success 200 {object} APIResponse{data=models.QAReview}
// @Failure 403 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Failure 422 {object} APIResponse
// @Router /qa/reviews/{id}/transitions [post]
func (c *ReviewController) TransitionReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.Render(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	var body TransitionRequestBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err.Error()))
		return
	}
	if body.Transition == "" {
		render.Render(w, r, BadRequestResponse("转换名称不能为空", nil))
		return
	}

	actor, ok := requireActor(r)
	if !ok {
		render.Render(w, r, ErrorResponse(http.StatusForbidden, "缺少有效的执行者标识", nil))
		return
	}

	review, err := c.stateMachine.Transition(&qa.TransitionRequest{
		ReviewID:   id,
		Transition: body.Transition,
		ActorID:    actor,
		Note:       body.Note,
		Payload:    body.Payload,
	})
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("转换成功", review))
}

// AddNoteRequest 追加备注请求体
type AddNoteRequest struct {
	Content            string   `json:"content"`
	ObservationTypeIDs []string `json:"observation_type_ids,omitempty"`
}

// AddNote 追加审查备注
// @Summary 追加审查备注
// @Description 为审查追加一条备注及可选的结构化意见
// @Tags 审查实例
// @Accept json
// @Produce json
// @Param id path string true "审查ID"
// @Param request body AddNoteRequest true "备注内容"
// @Success 200 {object} APIResponse{data=models.ReviewNote}
// @Failure 404 {object} APIResponse
// @Failure 422 {object} APIResponse
// @Router /qa/reviews/{id}/notes [post]
func (c *ReviewController) AddNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body AddNoteRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err.Error()))
		return
	}

	note, err := c.reviewService.AddNote(id, actorID(r), body.Content, body.ObservationTypeIDs)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("备注追加成功", note))
}

// UpdateAssigneeRequest 审查员改派请求体
type UpdateAssigneeRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

// UpdateAssignee 改派审查员
// @Summary 改派审查员
// @Description 变更审查的负责审查员，发生变化时发送改派通知
// @Tags 审查实例
// @Accept json
// @Produce json
// @Param id path string true "审查ID"
// @Param request body UpdateAssigneeRequest true "新审查员"
// @Success 200 {object} APIResponse{data=models.QAReview}
// @Failure 403 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /qa/reviews/{id}/assignee [put]
func (c *ReviewController) UpdateAssignee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body UpdateAssigneeRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err.Error()))
		return
	}

	actor, ok := requireActor(r)
	if !ok {
		render.Render(w, r, ErrorResponse(http.StatusForbidden, "缺少有效的执行者标识", nil))
		return
	}

	review, err := c.reviewService.UpdateAssignee(id, body.AssigneeID, actor)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("改派成功", review))
}

// ReconcileReview 手动触发审查协调
// @Summary 手动触发审查协调
// @Description 将审查重新入队协调循环，幂等可重复调用
// @Tags 审查实例
// @Produce json
// @Param id path string true "审查ID"
// @Success 200 {object} APIResponse
// @Router /qa/reviews/{id}/reconcile [post]
func (c *ReviewController) ReconcileReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.Render(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	c.reconciler.EnqueueReview(id)
	render.Render(w, r, SuccessResponse("协调已入队", map[string]interface{}{
		"review_id": id,
	}))
}

/*
 * @module api/controllers/requirement_controller
 * @description 审查要求策略API控制器，策略CRUD与覆盖率查询
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow HTTP请求 -> 业务逻辑处理 -> 响应返回
 * @rules 统一的错误处理和响应格式，被引用策略删除返回409
 * @dependencies certqa-service/service, github.com/go-chi/render
 * @refs service/qa/requirement_service.go
 */

package controllers

import (
	"certqa-service/service"
	"certqa-service/service/models"
	"certqa-service/service/qa"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// RequirementController 审查要求策略控制器
type RequirementController struct {
	service *qa.RequirementService
}

// NewRequirementController 创建策略控制器实例
func NewRequirementController() *RequirementController {
	return &RequirementController{
		service: service.GlobalRequirementService,
	}
}

// CreateRequirement 创建审查要求策略
// @Summary 创建审查要求策略
// @Description 为认证项目创建审查要求策略
// @Tags 审查策略
// @Accept json
// @Produce json
// @Param requirement body models.QARequirement true "策略信息"
// @Success 200 {object} APIResponse{data=models.QARequirement}
// @Failure 400 {object} APIResponse
// @Failure 403 {object} APIResponse
// @Failure 422 {object} APIResponse
// @Router /qa/requirements [post]
func (c *RequirementController) CreateRequirement(w http.ResponseWriter, r *http.Request) {
	var req models.QARequirement
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, BadRequestResponse(fmt.Sprintf("请求参数格式错误:%s", err.Error()), nil))
		return
	}

	if err := c.service.CreateRequirement(&req, actorID(r)); err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("创建成功", &req))
}

// GetRequirement 获取策略详情
// @Summary 获取策略详情
// @Description 根据ID获取审查要求策略详情
// @Tags 审查策略
// @Produce json
// @Param id path string true "策略ID"
// @Success 200 {object} APIResponse{data=models.QARequirement}
// @Failure 404 {object} APIResponse
// @Router /qa/requirements/{id} [get]
func (c *RequirementController) GetRequirement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.Render(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	req, err := c.service.GetRequirement(id)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("查询成功", req))
}

// GetRequirements 获取策略列表
// @Summary 获取策略列表
// @Description 按审查方公司列出审查要求策略
// @Tags 审查策略
// @Produce json
// @Param company_id query string false "审查方公司ID过滤"
// @Success 200 {object} APIResponse{data=[]models.QARequirement}
// @Failure 500 {object} APIResponse
// @Router /qa/requirements [get]
func (c *RequirementController) GetRequirements(w http.ResponseWriter, r *http.Request) {
	reqs, err := c.service.ListRequirements(r.URL.Query().Get("company_id"))
	if err != nil {
		render.Render(w, r, InternalErrorResponse("查询策略列表失败", err.Error()))
		return
	}

	render.Render(w, r, SuccessResponse("查询成功", reqs))
}

// UpdateRequirement 更新策略
// @Summary 更新策略
// @Description 更新审查要求策略的覆盖比例、门控开关与适用公司
// @Tags 审查策略
// @Accept json
// @Produce json
// @Param id path string true "策略ID"
// @Param requirement body models.QARequirement true "更新信息"
// @Success 200 {object} APIResponse{data=models.QARequirement}
// @Failure 403 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /qa/requirements/{id} [put]
func (c *RequirementController) UpdateRequirement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.Render(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	var updates models.QARequirement
	if err := render.DecodeJSON(r.Body, &updates); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err.Error()))
		return
	}

	req, err := c.service.UpdateRequirement(id, &updates, actorID(r))
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("更新成功", req))
}

// DeleteRequirement 删除策略
// @Summary 删除策略
// @Description 删除审查要求策略，存在关联审查时拒绝
// @Tags 审查策略
// @Produce json
// @Param id path string true "策略ID"
// @Success 200 {object} APIResponse
// @Failure 403 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /qa/requirements/{id} [delete]
func (c *RequirementController) DeleteRequirement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.Render(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	if err := c.service.DeleteRequirement(id, actorID(r)); err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("删除成功", nil))
}

// CoverageResponse 覆盖率查询响应结构
type CoverageResponse struct {
	RequirementID string  `json:"requirement_id"`
	CoveragePct   float64 `json:"coverage_pct" example:"0.42"`
	Year          int     `json:"year,omitempty" example:"2025"`
}

// GetActiveCoverage 查询活跃覆盖率
// @Summary 查询活跃覆盖率
// @Description 查询策略在当前活跃工作项上的抽检覆盖率
// @Tags 审查策略
// @Produce json
// @Param id path string true "策略ID"
// @Success 200 {object} APIResponse{data=CoverageResponse}
// @Failure 404 {object} APIResponse
// @Router /qa/requirements/{id}/coverage/active [get]
func (c *RequirementController) GetActiveCoverage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pct, err := c.service.ActiveCoverage(id)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("查询成功", CoverageResponse{
		RequirementID: id,
		CoveragePct:   pct,
	}))
}

// GetYearlyCoverage 查询年度覆盖率
// @Summary 查询年度覆盖率
// @Description 查询策略在指定认证年度的审查覆盖率，默认当前年度
// @Tags 审查策略
// @Produce json
// @Param id path string true "策略ID"
// @Param year query int false "认证年度" default(2025)
// @Success 200 {object} APIResponse{data=CoverageResponse}
// @Failure 404 {object} APIResponse
// @Router /qa/requirements/{id}/coverage/yearly [get]
func (c *RequirementController) GetYearlyCoverage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	year := time.Now().Year()
	if y, err := strconv.Atoi(r.URL.Query().Get("year")); err == nil && y > 0 {
		year = y
	}

	pct, err := c.service.YearlyCoverage(id, year)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Render(w, r, SuccessResponse("查询成功", CoverageResponse{
		RequirementID: id,
		CoveragePct:   pct,
		Year:          year,
	}))
}

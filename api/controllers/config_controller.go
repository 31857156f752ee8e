/*
 * @module api/controllers/config_controller
 * @description 系统配置API控制器，网关专项通知白名单的查询与维护
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow HTTP请求 -> 配置读写 -> 响应返回
 * @rules 白名单以JSON数组存储于系统配置表，缺失时回退默认值
 * @dependencies certqa-service/service, github.com/go-chi/render
 * @refs service/qa/state_machine.go, service/qa/handlers.go
 */

package controllers

import (
	"certqa-service/service"
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"certqa-service/service/qa"
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
	"gorm.io/gorm/clause"
)

// ConfigController 系统配置控制器
type ConfigController struct{}

// NewConfigController 创建系统配置控制器实例
func NewConfigController() *ConfigController {
	return &ConfigController{}
}

// GatingNoticeProgramsResponse 网关通知白名单响应结构
type GatingNoticeProgramsResponse struct {
	Programs []string `json:"programs"`
}

// GetGatingNoticePrograms 查询网关通知白名单
// @Summary 查询网关通知白名单
// @Description 查询网关失败时发送专项通知的认证项目白名单
// @Tags 系统配置
// @Produce json
// @Success 200 {object} APIResponse{data=GatingNoticeProgramsResponse}
// @Router /qa/config/gating-notice-programs [get]
func (c *ConfigController) GetGatingNoticePrograms(w http.ResponseWriter, r *http.Request) {
	programs := qa.GatingNoticePrograms(service.DB)
	render.Render(w, r, SuccessResponse("查询成功", GatingNoticeProgramsResponse{Programs: programs}))
}

// UpdateGatingNoticePrograms 更新网关通知白名单
// @Summary 更新网关通知白名单
// @Description 整体覆盖网关失败专项通知的认证项目白名单
// @Tags 系统配置
// @Accept json
// @Produce json
// @Param request body GatingNoticeProgramsResponse true "新白名单"
// @Success 200 {object} APIResponse{data=GatingNoticeProgramsResponse}
// @Failure 400 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /qa/config/gating-notice-programs [put]
func (c *ConfigController) UpdateGatingNoticePrograms(w http.ResponseWriter, r *http.Request) {
	var body GatingNoticeProgramsResponse
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err.Error()))
		return
	}

	value, err := json.Marshal(body.Programs)
	if err != nil {
		render.Render(w, r, BadRequestResponse("白名单序列化失败", err.Error()))
		return
	}

	cfg := models.SystemConfig{
		Key:   meta.ConfigKeyGatingNoticePrograms,
		Value: string(value),
	}
	err = service.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&cfg).Error
	if err != nil {
		render.Render(w, r, InternalErrorResponse("白名单保存失败", err.Error()))
		return
	}

	render.Render(w, r, SuccessResponse("更新成功", body))
}

// GetObservationTypes 查询意见类型字典
// @Summary 查询意见类型字典
// @Description 列出全部可用的结构化意见类型
// @Tags 系统配置
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.ObservationType}
// @Failure 500 {object} APIResponse
// @Router /qa/config/observation-types [get]
func (c *ConfigController) GetObservationTypes(w http.ResponseWriter, r *http.Request) {
	var types []models.ObservationType
	if err := service.DB.Order("name ASC").Find(&types).Error; err != nil {
		render.Render(w, r, InternalErrorResponse("查询意见类型失败", err.Error()))
		return
	}

	render.Render(w, r, SuccessResponse("查询成功", types))
}

/*
 * @module api/controllers/apikey_controller
 * @description API密钥管理控制器，密钥签发与吊销
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 签发请求 -> 明文返回一次 -> 后续请求经中间件验证
 * @rules 明文密钥仅在签发响应中出现一次，存储侧只保留bcrypt哈希
 * @dependencies certqa-service/service, github.com/go-chi/render
 * @refs api/middleware/apikey_auth.go, service/access/apikey_service.go
 */

package controllers

import (
	"certqa-service/service"
	"certqa-service/service/access"
	"certqa-service/service/models"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ApiKeyController API密钥管理控制器
type ApiKeyController struct {
	service *access.ApiKeyService
}

// NewApiKeyController 创建API密钥控制器实例
func NewApiKeyController() *ApiKeyController {
	return &ApiKeyController{
		service: service.GlobalApiKeyService,
	}
}

// IssueKeyRequest 密钥签发请求体
type IssueKeyRequest struct {
	Name      string     `json:"name" example:"certification-platform"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IssueKeyResponse 密钥签发响应结构
type IssueKeyResponse struct {
	Key    string         `json:"key" example:"cqa_..."`
	Record *models.ApiKey `json:"record"`
}

// IssueKey 签发API密钥
// @Summary 签发API密钥
// @Description 签发一个新的API密钥，明文仅在本次响应中返回
// @Tags API密钥
// @Accept json
// @Produce json
// @Param request body IssueKeyRequest true "签发请求"
// @Success 200 {object} APIResponse{data=IssueKeyResponse}
// @Failure 400 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /qa/api-keys [post]
func (c *ApiKeyController) IssueKey(w http.ResponseWriter, r *http.Request) {
	var body IssueKeyRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err.Error()))
		return
	}
	if body.Name == "" {
		render.Render(w, r, BadRequestResponse("密钥名称不能为空", nil))
		return
	}

	key, record, err := c.service.IssueKey(body.Name, actorID(r), body.ExpiresAt)
	if err != nil {
		render.Render(w, r, InternalErrorResponse("密钥签发失败", err.Error()))
		return
	}

	render.Render(w, r, SuccessResponse("签发成功", IssueKeyResponse{
		Key:    key,
		Record: record,
	}))
}

// RevokeKey 吊销API密钥
// @Summary 吊销API密钥
// @Description 吊销指定API密钥，吊销后立即失效
// @Tags API密钥
// @Produce json
// @Param id path string true "密钥ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /qa/api-keys/{id} [delete]
func (c *ApiKeyController) RevokeKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.Render(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	if err := c.service.RevokeKey(id); err != nil {
		render.Render(w, r, NotFoundResponse(err.Error(), nil))
		return
	}

	render.Render(w, r, SuccessResponse("吊销成功", nil))
}

package controllers

import (
	"certqa-service/service/identity"
	"certqa-service/service/qa"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
)

// APIResponse 统一API响应结构
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data"`
	Total  int64       `json:"total" example:"100"`
	Page   int         `json:"page" example:"1"`
	Size   int         `json:"size" example:"10"`
}

// Render 实现render.Renderer接口，按Status设置HTTP状态码
func (resp *APIResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if resp.Status == 0 {
		render.Status(r, http.StatusOK)
	} else {
		render.Status(r, resp.Status)
	}
	return nil
}

// Render 实现render.Renderer接口
func (resp *PaginatedResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusOK)
	return nil
}

// SuccessResponse 成功响应
func SuccessResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: 0, Msg: msg, Data: data}
}

// PageResponse 分页成功响应
func PageResponse(msg string, data interface{}, total int64, page, size int) *PaginatedResponse {
	return &PaginatedResponse{Status: 0, Msg: msg, Data: data, Total: total, Page: page, Size: size}
}

// ErrorResponse 指定状态码的错误响应
func ErrorResponse(status int, msg string, err error) *APIResponse {
	resp := &APIResponse{Status: status, Msg: msg}
	if err != nil {
		resp.Data = err.Error()
	}
	return resp
}

// BadRequestResponse 400错误响应
func BadRequestResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusBadRequest, Msg: msg, Data: data}
}

// NotFoundResponse 404错误响应
func NotFoundResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusNotFound, Msg: msg, Data: data}
}

// InternalErrorResponse 500错误响应
func InternalErrorResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusInternalServerError, Msg: msg, Data: data}
}

// renderServiceError 将业务层哨兵错误映射为对应HTTP状态码的响应
func renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, qa.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, qa.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, qa.ErrAlreadyExists),
		errors.Is(err, qa.ErrAlreadyComplete),
		errors.Is(err, qa.ErrRequirementInUse):
		status = http.StatusConflict
	case errors.Is(err, qa.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, qa.ErrInvalidPolicyType),
		errors.Is(err, qa.ErrMissingRequiredNote),
		errors.Is(err, qa.ErrMissingRequiredResult),
		errors.Is(err, qa.ErrValidationFailed):
		status = http.StatusUnprocessableEntity
	}
	render.Render(w, r, ErrorResponse(status, err.Error(), nil))
}

// actorID 提取请求执行者标识，该头可能为空，守卫敏感端点须经requireActor
func actorID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// requireActor 提取并校验请求执行者标识
// 空值与系统保留标识一律拒绝，系统身份只在内部协调链路内使用，不对HTTP面开放
func requireActor(r *http.Request) (string, bool) {
	actor := r.Header.Get("X-User-ID")
	if actor == "" || actor == identity.SystemActorID {
		return "", false
	}
	return actor, true
}

// parsePagination 解析分页参数
func parsePagination(r *http.Request) (page, size int) {
	page, size = 1, 10
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s > 0 && s <= 100 {
		size = s
	}
	return page, size
}

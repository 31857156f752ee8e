/*
 * @module api/controllers/notification_controller
 * @description 通知API控制器，提供SSE实时推送连接与通知历史查询
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow SSE连接建立 -> 通知通道订阅 -> 实时推送 -> 连接清理
 * @rules SSE连接按公司维度订阅，连接断开时自动移除
 * @dependencies certqa-service/service, github.com/go-chi/chi/v5
 * @refs service/event/event_service.go
 */

package controllers

import (
	"certqa-service/service"
	"certqa-service/service/event"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

// NotificationController 通知控制器
type NotificationController struct {
	eventService *event.EventService
}

// NewNotificationController 创建通知控制器实例
func NewNotificationController() *NotificationController {
	return &NotificationController{
		eventService: service.GlobalEventService,
	}
}

// HandleSSE 建立通知SSE连接
// @Summary 建立通知SSE连接
// @Description 按公司维度建立SSE连接，接收QA工作流通知的实时推送
// @Tags 通知
// @Param company_id path string true "公司ID"
// @Success 200 {string} string "SSE事件流"
// @Router /sse/{company_id} [get]
func (c *NotificationController) HandleSSE(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "company_id")
	if companyID == "" {
		http.Error(w, "公司ID不能为空", http.StatusBadRequest)
		return
	}

	// 设置SSE响应头
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	// 生成连接ID
	connectionID := uuid.New().String()

	// 添加SSE连接
	client := c.eventService.AddSSEConnection(companyID, connectionID)
	defer c.eventService.RemoveSSEConnection(companyID, connectionID)

	// 发送连接成功事件
	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"connection_id\":\"%s\",\"timestamp\":\"%s\"}\n\n",
		connectionID, time.Now().Format(time.RFC3339))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	// 处理通知推送
	for {
		select {
		case notification := <-client.Channel:
			fmt.Fprintf(w, "data: %s\n\n", toJSON(notification))

			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}

		case <-client.Done:
			return

		case <-r.Context().Done():
			return
		}
	}
}

// GetNotifications 获取通知历史
// @Summary 获取通知历史
// @Description 分页获取通知记录，支持按接收方公司过滤
// @Tags 通知
// @Produce json
// @Param company_id query string false "接收方公司ID过滤"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Success 200 {object} PaginatedResponse{data=[]models.Notification}
// @Failure 500 {object} APIResponse
// @Router /qa/notifications [get]
func (c *NotificationController) GetNotifications(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)
	notifications, total, err := c.eventService.ListNotifications(r.URL.Query().Get("company_id"), page, size)
	if err != nil {
		render.Render(w, r, InternalErrorResponse("查询通知列表失败", err.Error()))
		return
	}

	render.Render(w, r, PageResponse("查询成功", notifications, total, page, size))
}

// toJSON 将对象转换为JSON字符串
func toJSON(v interface{}) string {
	data, _ := json.Marshal(v)
	return string(data)
}

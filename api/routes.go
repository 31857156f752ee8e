/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers
 */

package api

import (
	"certqa-service/api/controllers"
	"certqa-service/api/middleware"
	"certqa-service/service"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-User-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API密钥鉴权
	authMiddleware := middleware.NewApiKeyAuthMiddleware(service.GlobalApiKeyService)
	r.Use(authMiddleware.Middleware)

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// SSE通知订阅
	notificationController := controllers.NewNotificationController()
	r.Get("/sse/{company_id}", notificationController.HandleSSE)

	r.Route("/qa", func(r chi.Router) {
		// 审查要求策略管理
		r.Route("/requirements", func(r chi.Router) {
			requirementController := controllers.NewRequirementController()

			r.Post("/", requirementController.CreateRequirement)
			r.Get("/", requirementController.GetRequirements)
			r.Get("/{id}", requirementController.GetRequirement)
			r.Put("/{id}", requirementController.UpdateRequirement)
			r.Delete("/{id}", requirementController.DeleteRequirement)

			// 覆盖率查询
			r.Get("/{id}/coverage/active", requirementController.GetActiveCoverage)
			r.Get("/{id}/coverage/yearly", requirementController.GetYearlyCoverage)
		})

		// 审查实例管理
		r.Route("/reviews", func(r chi.Router) {
			reviewController := controllers.NewReviewController()

			r.Post("/", reviewController.CreateReview)
			r.Get("/", reviewController.GetReviews)
			r.Get("/{id}", reviewController.GetReview)
			r.Delete("/{id}", reviewController.DeleteReview)

			// 命名状态转换
			r.Post("/{id}/transitions", reviewController.TransitionReview)

			// 备注与改派
			r.Post("/{id}/notes", reviewController.AddNote)
			r.Put("/{id}/assignee", reviewController.UpdateAssignee)

			// 手动协调触发
			r.Post("/{id}/reconcile", reviewController.ReconcileReview)
		})

		// 工作项管理
		r.Route("/work-items", func(r chi.Router) {
			workItemController := controllers.NewWorkItemController()

			r.Post("/", workItemController.CreateWorkItem)
			r.Get("/{id}", workItemController.GetWorkItem)
			r.Put("/{id}/state", workItemController.UpdateWorkItemState)
			r.Get("/{id}/eligibility", workItemController.GetEligibility)
			r.Post("/{id}/reconcile", workItemController.ReconcileWorkItem)
		})

		// 通知历史
		r.Get("/notifications", notificationController.GetNotifications)

		// 系统配置
		r.Route("/config", func(r chi.Router) {
			configController := controllers.NewConfigController()

			r.Get("/gating-notice-programs", configController.GetGatingNoticePrograms)
			r.Put("/gating-notice-programs", configController.UpdateGatingNoticePrograms)
			r.Get("/observation-types", configController.GetObservationTypes)
		})

		// API密钥管理
		r.Route("/api-keys", func(r chi.Router) {
			apiKeyController := controllers.NewApiKeyController()

			r.Post("/", apiKeyController.IssueKey)
			r.Delete("/{id}", apiKeyController.RevokeKey)
		})
	})
}

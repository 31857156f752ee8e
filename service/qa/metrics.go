/*
 * @module service/qa/metrics
 * @description QA状态机Prometheus指标，转换计数与状态停留时长（周期时间）统计
 * @architecture 分层架构 - 可观测性
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 转换提交 -> 指标观测 -> /metrics暴露
 * @rules 指标观测不得影响转换结果
 * @dependencies github.com/prometheus/client_golang
 * @refs main.go, service/qa/state_machine.go
 */

package qa

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "certqa",
		Subsystem: "review",
		Name:      "transitions_total",
		Help:      "审查状态转换总数",
	}, []string{"transition", "actor_type"})

	transitionRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "certqa",
		Subsystem: "review",
		Name:      "transitions_rejected_total",
		Help:      "被拒绝的审查状态转换总数",
	}, []string{"transition", "reason"})

	stateDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "certqa",
		Subsystem: "review",
		Name:      "state_duration_seconds",
		Help:      "审查在前一状态的停留时长",
		Buckets:   prometheus.ExponentialBuckets(60, 4, 10),
	}, []string{"from_state", "to_state"})

	reconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "certqa",
		Subsystem: "reconciler",
		Name:      "runs_total",
		Help:      "协调循环执行总数",
	}, []string{"trigger", "outcome"})
)

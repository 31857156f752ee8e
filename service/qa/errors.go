/*
 * @module service/qa/errors
 * @description QA引擎错误分类定义，同步拒绝类错误的哨兵值
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 校验失败 -> 哨兵错误包装 -> 调用方按类别处理
 * @rules 不变量/权限/校验失败同步拒绝；引用不一致记录日志后继续；通知失败不上抛
 * @refs api/controllers/review_controller.go
 */

package qa

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

var (
	// ErrNotFound 审查或其关联对象不存在
	ErrNotFound = errors.New("审查不存在")
	// ErrAlreadyExists 同一策略与主体的审查已存在
	ErrAlreadyExists = errors.New("该策略与主体的审查已存在")
	// ErrInvalidPolicyType 策略审查类型非法
	ErrInvalidPolicyType = errors.New("无效的策略审查类型")
	// ErrForbidden 执行者无权触发该转换
	ErrForbidden = errors.New("无权执行该操作")
	// ErrInvalidTransition 当前状态下不存在该转换
	ErrInvalidTransition = errors.New("非法的状态转换")
	// ErrMissingRequiredNote 转换要求非空备注
	ErrMissingRequiredNote = errors.New("该转换要求提供非空备注")
	// ErrMissingRequiredResult 进入终态要求给出审查结论
	ErrMissingRequiredResult = errors.New("进入终态必须给出审查结论")
	// ErrValidationFailed 项目评分数据校验失败
	ErrValidationFailed = errors.New("评分数据校验失败")
	// ErrAlreadyComplete 已有终态结论的审查不可删除
	ErrAlreadyComplete = errors.New("审查已有终态结论，禁止删除")
	// ErrRequirementInUse 策略仍被审查引用，禁止删除
	ErrRequirementInUse = errors.New("策略仍被审查引用，禁止删除")
)

// isUniqueViolation 判断数据库错误是否为唯一约束冲突
// Postgres按23505错误码识别，SQLite（测试环境）按驱动报错文本识别
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package processor

import (
	"errors"
	"fmt"
	"net/http"
)

// 定义基础错误类型
var (
	ErrValidation      = errors.New("请求校验失败")
	ErrNotFound        = errors.New("目标记录不存在")
	ErrExternalService = errors.New("外部服务调用失败")
	ErrTransaction     = errors.New("事务执行失败")
	ErrConflict        = errors.New("与已有记录冲突")
)

// 稳定的机器可读错误码，随错误体返回给调用方
const (
	CodeValidation      = "VALIDATION"
	CodeNotFound        = "NOT_FOUND"
	CodeExternalService = "EXTERNAL_SERVICE"
	CodeTransaction     = "TRANSACTION"
	CodeConflict        = "CONFLICT"
	CodeInternal        = "INTERNAL"
)

// WorkflowError 包含详细错误信息的自定义错误
type WorkflowError struct {
	Op      string
	BaseErr error
	Detail  string
}

func (e *WorkflowError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s): %s", e.BaseErr, e.Op, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s)", e.BaseErr, e.Op)
}

func (e *WorkflowError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewValidationError(op, detail string) error {
	return &WorkflowError{Op: op, BaseErr: ErrValidation, Detail: detail}
}

func NewNotFoundError(op, detail string) error {
	return &WorkflowError{Op: op, BaseErr: ErrNotFound, Detail: detail}
}

func NewExternalServiceError(op, detail string) error {
	return &WorkflowError{Op: op, BaseErr: ErrExternalService, Detail: detail}
}

func NewTransactionError(op, detail string) error {
	return &WorkflowError{Op: op, BaseErr: ErrTransaction, Detail: detail}
}

func NewConflictError(op, detail string) error {
	return &WorkflowError{Op: op, BaseErr: ErrConflict, Detail: detail}
}

// CodeOf 返回错误对应的机器可读错误码
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrExternalService):
		return CodeExternalService
	case errors.Is(err, ErrTransaction):
		return CodeTransaction
	case errors.Is(err, ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}

// HTTPStatus 返回错误对应的HTTP状态码
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

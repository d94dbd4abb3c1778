package errors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

/* ========================================================================
 * Error Package - 统一错误处理
 * ========================================================================
 * 职责: 定义数据访问核心的失败分类（配置/拒绝访问/校验/并发冲突/数据访问）
 * 设计: 每个错误码在 codeTable 中登记一次: 分类、gRPC 状态码、HTTP 状态码
 *       调用方根据 Code 决定对外状态码，核心本身不渲染响应
 * ======================================================================== */

// ErrorCode 业务错误码
type ErrorCode int

const (
	// 通用错误 (1xxx)
	ErrCodeUnknown          ErrorCode = 1000 // 未知错误
	ErrCodeInvalidArgument  ErrorCode = 1001 // 参数无效
	ErrCodeNotFound         ErrorCode = 1002 // 资源不存在
	ErrCodeAlreadyExists    ErrorCode = 1003 // 资源已存在
	ErrCodePermissionDenied ErrorCode = 1004 // 权限不足
	ErrCodeUnauthenticated  ErrorCode = 1005 // 未认证
	ErrCodeInternal         ErrorCode = 1006 // 内部错误
	ErrCodeUnavailable      ErrorCode = 1007 // 服务不可用
	ErrCodeTimeout          ErrorCode = 1008 // 超时
	ErrCodeCanceled         ErrorCode = 1009 // 已取消

	// 数据访问核心错误 (101x)
	ErrCodeConfiguration ErrorCode = 1010 // 配置缺陷（实体未注册、排序字段不在白名单等），不可重试
	ErrCodeConflict      ErrorCode = 1011 // 并发冲突（序列分配竞争），可整体重试
)

// Kind 名称，对应失败分类
const (
	KindConfiguration = "configuration"
	KindAccessDenied  = "access_denied"
	KindValidation    = "validation"
	KindConflict      = "concurrency_conflict"
	KindDataAccess    = "data_access"
	KindUnknown       = "unknown"
)

type codeSpec struct {
	kind string
	grpc codes.Code
	http int
}

var codeTable = map[ErrorCode]codeSpec{
	ErrCodeUnknown:          {KindUnknown, codes.Unknown, fiber.StatusInternalServerError},
	ErrCodeInvalidArgument:  {KindValidation, codes.InvalidArgument, fiber.StatusBadRequest},
	ErrCodeNotFound:         {KindDataAccess, codes.NotFound, fiber.StatusNotFound},
	ErrCodeAlreadyExists:    {KindDataAccess, codes.AlreadyExists, fiber.StatusConflict},
	ErrCodePermissionDenied: {KindAccessDenied, codes.PermissionDenied, fiber.StatusForbidden},
	ErrCodeUnauthenticated:  {KindAccessDenied, codes.Unauthenticated, fiber.StatusUnauthorized},
	ErrCodeInternal:         {KindDataAccess, codes.Internal, fiber.StatusInternalServerError},
	ErrCodeUnavailable:      {KindDataAccess, codes.Unavailable, fiber.StatusServiceUnavailable},
	ErrCodeTimeout:          {KindDataAccess, codes.DeadlineExceeded, fiber.StatusGatewayTimeout},
	ErrCodeCanceled:         {KindDataAccess, codes.Canceled, 499},
	ErrCodeConfiguration:    {KindConfiguration, codes.FailedPrecondition, fiber.StatusInternalServerError},
	ErrCodeConflict:         {KindConflict, codes.Aborted, fiber.StatusConflict},
}

// fromGRPC gRPC 状态码反查，未登记的按 Internal 处理
var fromGRPC = func() map[codes.Code]ErrorCode {
	m := make(map[codes.Code]ErrorCode, len(codeTable))
	for code, entry := range codeTable {
		m[entry.grpc] = code
	}
	return m
}()

// BizError 业务错误
type BizError struct {
	Code    ErrorCode // 业务错误码
	Message string    // 错误消息
	Cause   error     // 原始错误
}

func (e *BizError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Is 按业务错误码匹配
func (e *BizError) Is(target error) bool {
	t, ok := target.(*BizError)
	return ok && e.Code == t.Code
}

func (e *BizError) Unwrap() error {
	return e.Cause
}

// New 创建业务错误
func New(code ErrorCode, message string) *BizError {
	return &BizError{Code: code, Message: message}
}

// Wrap 包装错误
func Wrap(code ErrorCode, message string, cause error) *BizError {
	return &BizError{Code: code, Message: message, Cause: cause}
}

// Wrapf 格式化包装错误
func Wrapf(code ErrorCode, cause error, format string, args ...any) *BizError {
	return &BizError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// 哨兵错误，用于 errors.Is 按错误码判断
var (
	ErrNotFound      = New(ErrCodeNotFound, "resource not found")
	ErrConfiguration = New(ErrCodeConfiguration, "configuration error")
	ErrConflict      = New(ErrCodeConflict, "concurrency conflict")
	ErrAccessDenied  = New(ErrCodePermissionDenied, "access denied")
)

// Configurationf 配置缺陷：实体未注册、scope 与序列级别不符等，重试无意义
func Configurationf(format string, args ...any) *BizError {
	return New(ErrCodeConfiguration, fmt.Sprintf(format, args...))
}

// AccessDenied 目标租户不在调用方范围内
func AccessDenied(message string) *BizError {
	return New(ErrCodePermissionDenied, message)
}

// Validationf 调用方参数错误
func Validationf(format string, args ...any) *BizError {
	return New(ErrCodeInvalidArgument, fmt.Sprintf(format, args...))
}

// DataAccess 包装底层存储错误
func DataAccess(message string, cause error) *BizError {
	return Wrap(ErrCodeInternal, message, cause)
}

// Is 同标准库 errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 同标准库 errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// AsBizError 取出错误链上最外层的 BizError
func AsBizError(err error) (*BizError, bool) {
	var bizErr *BizError
	if err != nil && errors.As(err, &bizErr) {
		return bizErr, true
	}
	return nil, false
}

// Code 获取错误码，非业务错误返回 ErrCodeUnknown
func Code(err error) ErrorCode {
	if bizErr, ok := AsBizError(err); ok {
		return bizErr.Code
	}
	return ErrCodeUnknown
}

// IsNotFound 判断是否为 NotFound 错误
func IsNotFound(err error) bool {
	return Code(err) == ErrCodeNotFound
}

// Kind 返回错误所属的失败分类，nil 返回空串
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if entry, ok := codeTable[Code(err)]; ok {
		return entry.kind
	}
	return KindUnknown
}

// IsRetryable 仅并发冲突可由事务所有者整体重试
func IsRetryable(err error) bool {
	return Code(err) == ErrCodeConflict
}

// ToGRPCError 将业务错误转换为 gRPC 错误，非业务错误按 Internal 处理
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	bizErr, ok := AsBizError(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	grpcCode := codes.Unknown
	if entry, ok := codeTable[bizErr.Code]; ok {
		grpcCode = entry.grpc
	}
	return status.Error(grpcCode, bizErr.Message)
}

// FromGRPCError 将 gRPC 错误转换为业务错误
func FromGRPCError(err error) *BizError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return Wrap(ErrCodeUnknown, "unknown error", err)
	}
	code, ok := fromGRPC[st.Code()]
	if !ok || code == ErrCodeUnknown {
		code = ErrCodeInternal
	}
	return New(code, st.Message())
}

// HTTPStatus 返回错误码对应的 HTTP 状态码
func HTTPStatus(code ErrorCode) int {
	if entry, ok := codeTable[code]; ok {
		return entry.http
	}
	return fiber.StatusInternalServerError
}

// ToHTTPResponse 将错误转换为 HTTP 状态码与 {code,msg} 响应体
func ToHTTPResponse(err error) (int, fiber.Map) {
	if err == nil {
		return fiber.StatusOK, fiber.Map{"code": 0, "msg": "success"}
	}
	bizErr, ok := AsBizError(err)
	if !ok {
		return fiber.StatusInternalServerError, fiber.Map{"code": 500, "msg": "internal server error"}
	}
	return HTTPStatus(bizErr.Code), fiber.Map{"code": int(bizErr.Code), "msg": bizErr.Message}
}

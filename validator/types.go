package validator

import (
	"slices"
	"strings"
)

/* ========================================================================
 * Validator Types - 验证器类型定义
 * ========================================================================
 * 职责: 定义按字段分组的验证错误
 * ======================================================================== */

const (
	// tagCustom 自定义错误消息标签名，格式 "rule:msg|rule:msg"
	tagCustom     = "error_msg"
	ruleSeparator = "|"
	keyValueSep   = ":"
)

// ValidationError 按字段分组的验证错误，字段名取 json 标签
type ValidationError struct {
	Errors map[string][]string // 字段名 -> 错误消息列表
}

// Error 按字段名排序输出，保证同一输入得到同一消息
func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, field := range v.Fields() {
		parts = append(parts, field+": "+strings.Join(v.Errors[field], ", "))
	}
	return strings.Join(parts, "; ")
}

// HasErrors 检查是否有验证错误
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add 添加字段错误
func (v *ValidationError) Add(field, message string) {
	if v.Errors == nil {
		v.Errors = make(map[string][]string)
	}
	v.Errors[field] = append(v.Errors[field], message)
}

// Get 获取字段错误消息
func (v *ValidationError) Get(field string) []string {
	return v.Errors[field]
}

// Fields 返回出错的字段名（已排序）
func (v *ValidationError) Fields() []string {
	fields := make([]string, 0, len(v.Errors))
	for field := range v.Errors {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	return fields
}

package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

/* ========================================================================
 * Validator - 请求参数验证器
 * ========================================================================
 * 职责: 基于 validate 标签校验结构体，返回按字段分组的 ValidationError
 * 特性:
 *   - error_msg 标签定义每条规则的错误消息
 *   - 嵌套结构体按 "parent.child" 报告
 *   - 每个类型的字段与消息只解析一次
 * 使用示例:
 *     type ListParams struct {
 *         Page *int `json:"page" validate:"omitempty,min=1" error_msg:"min:page must be >= 1"`
 *     }
 *     if err := validator.New().Validate(&params); err != nil { ... }
 * ======================================================================== */

// fieldInfo 字段信息
type fieldInfo struct {
	index    int
	name     string            // 报告用字段名（json 标签优先）
	rules    string            // validate 标签
	messages map[string]string // 规则 -> 自定义消息
	nested   bool              // 结构体或结构体指针
}

// Validator 验证器
type Validator struct {
	validate *validator.Validate
	types    sync.Map // reflect.Type -> []fieldInfo
}

// New 创建验证器
func New() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate 验证结构体或结构体指针，nil 视为通过
func (v *Validator) Validate(s any) error {
	value := reflect.ValueOf(s)
	if !value.IsValid() || (value.Kind() == reflect.Ptr && value.IsNil()) {
		return nil
	}

	errs := &ValidationError{}
	v.validateStruct(value, "", errs)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (v *Validator) validateStruct(value reflect.Value, prefix string, errs *ValidationError) {
	if value.Kind() == reflect.Ptr {
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return
	}

	for _, f := range v.fields(value.Type()) {
		fieldValue := value.Field(f.index)
		name := f.name
		if prefix != "" {
			name = prefix + "." + f.name
		}

		if f.nested {
			if fieldValue.Kind() == reflect.Ptr && fieldValue.IsNil() {
				continue
			}
			v.validateStruct(fieldValue, name, errs)
			continue
		}
		if f.rules == "" {
			continue
		}

		err := v.validate.Var(fieldValue.Interface(), f.rules)
		if err == nil {
			continue
		}
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			errs.Add(name, err.Error())
			continue
		}
		for _, fe := range fieldErrs {
			msg, ok := f.messages[fe.Tag()]
			if !ok {
				msg = name + " failed on '" + fe.Tag() + "'"
			}
			errs.Add(name, msg)
		}
	}
}

// fields 返回类型的字段信息（带缓存）
func (v *Validator) fields(t reflect.Type) []fieldInfo {
	if cached, ok := v.types.Load(t); ok {
		return cached.([]fieldInfo)
	}

	var fields []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		rules := field.Tag.Get("validate")
		if rules == "-" {
			continue
		}
		fields = append(fields, fieldInfo{
			index:    i,
			name:     fieldName(field),
			rules:    rules,
			messages: parseMessages(field.Tag.Get(tagCustom)),
			// time.Time 等带规则的结构体按值校验
			nested: ft.Kind() == reflect.Struct && rules == "",
		})
	}

	actual, _ := v.types.LoadOrStore(t, fields)
	return actual.([]fieldInfo)
}

func fieldName(field reflect.StructField) string {
	if tag := field.Tag.Get("json"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}

// parseMessages 解析 "required:邮箱必填|email:邮箱格式错误"
func parseMessages(tag string) map[string]string {
	if tag == "" {
		return nil
	}
	messages := make(map[string]string)
	for _, part := range strings.Split(tag, ruleSeparator) {
		rule, msg, ok := strings.Cut(part, keyValueSep)
		if ok {
			messages[strings.TrimSpace(rule)] = strings.TrimSpace(msg)
		}
	}
	return messages
}

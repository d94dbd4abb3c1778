package repository

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aisgo/ais-wms-core/errors"
	"github.com/aisgo/ais-wms-core/logger"
	"github.com/aisgo/ais-wms-core/metrics"
	"github.com/aisgo/ais-wms-core/validator"

	"gorm.io/gorm/clause"
)

/* ========================================================================
 * Query Builder - 通用查询过滤构建器
 * ========================================================================
 * 职责: 把请求参数翻译成搜索谓词与排序
 *   - 按字段分类展开 term: numeric 精确匹配 / text 不区分大小写子串 / date 当日半开区间
 *   - 各字段谓词 OR 组合；term 无法解析的字段只丢弃该字段
 *   - 排序字段必须在白名单内，默认按创建时间降序，主键作为稳定排序
 * ======================================================================== */

// ListParams 列表请求参数
type ListParams struct {
	Term   string `json:"term" query:"term"`
	Fields string `json:"fields" query:"fields"` // 逗号分隔
	Page   *int   `json:"page" query:"page" validate:"omitempty,min=1" error_msg:"min:page must be >= 1"`
	Limit  *int   `json:"limit" query:"limit" validate:"omitempty,min=1" error_msg:"min:limit must be >= 1"`
	Sort   string `json:"sort" query:"sort"`
	Order  string `json:"order" query:"order" validate:"omitempty,oneof=asc desc ASC DESC" error_msg:"oneof:order must be asc or desc"`
}

// decimalTerm numeric 字段只接受十进制字面量（不接受 NaN、Inf、科学计数法）
var decimalTerm = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// dateLayouts term 可接受的日期格式
var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

// QueryBuilder 查询过滤构建器
type QueryBuilder struct {
	registry   *Registry
	translator *Translator
	validator  *validator.Validator
	metrics    *metrics.Collector
	log        *logger.Logger
}

// NewQueryBuilder 创建查询构建器
func NewQueryBuilder(registry *Registry, translator *Translator, collector *metrics.Collector, log *logger.Logger) *QueryBuilder {
	if log == nil {
		log = logger.NewNop()
	}
	return &QueryBuilder{
		registry:   registry,
		translator: translator,
		validator:  validator.New(),
		metrics:    collector,
		log:        log,
	}
}

// validate 校验分页/排序参数，非法值是调用方错误，不做截断
func (b *QueryBuilder) validate(params ListParams) error {
	if err := b.validator.Validate(&params); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidArgument, "invalid list parameters", err)
	}
	if params.Limit != nil && *params.Limit > b.registry.cfg.Query.MaxLimit {
		return errors.Validationf("limit must be <= %d", b.registry.cfg.Query.MaxLimit)
	}
	// offset = (page-1)*limit 不能溢出
	if params.Page != nil && params.Limit != nil && *params.Limit > 0 {
		page, limit := *params.Page, *params.Limit
		if page-1 > math.MaxInt/limit {
			return errors.Validationf("page %d is out of range for limit %d", page, limit)
		}
	}
	return nil
}

// Search 构建搜索谓词，term 为空时返回 nil
func (b *QueryBuilder) Search(dialect string, entityType EntityType, term, fields string) (clause.Expression, error) {
	e, err := b.registry.lookup(entityType)
	if err != nil {
		return nil, err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	names := splitFields(fields)
	if len(names) == 0 {
		// 未指定字段时在全部文本字段中搜索
		for _, f := range e.Fields {
			if f.Kind == FieldText {
				names = append(names, f.Name)
			}
		}
	}

	exprs := make([]clause.Expression, 0, len(names))
	for _, name := range names {
		kind, ok := e.fields[name]
		if !ok {
			return nil, errors.Validationf("field %q is not searchable on %s", name, entityType)
		}
		col := clause.Column{Table: e.Table, Name: name}
		if expr := fieldPredicate(dialect, kind, col, term); expr != nil {
			exprs = append(exprs, expr)
		}
	}

	switch len(exprs) {
	case 0:
		return matchNothing, nil
	case 1:
		return exprs[0], nil
	default:
		return clause.Or(exprs...), nil
	}
}

func fieldPredicate(dialect string, kind FieldKind, col clause.Column, term string) clause.Expression {
	switch kind {
	case FieldNumeric:
		if !decimalTerm.MatchString(term) {
			return nil
		}
		if n, err := strconv.ParseInt(term, 10, 64); err == nil {
			return clause.Eq{Column: col, Value: n}
		}
		if f, err := strconv.ParseFloat(term, 64); err == nil {
			return clause.Eq{Column: col, Value: f}
		}
		return nil
	case FieldText:
		return textMatch(dialect, col, term)
	case FieldDate:
		day, ok := parseDay(term)
		if !ok {
			return nil
		}
		return clause.And(
			clause.Gte{Column: col, Value: day},
			clause.Lt{Column: col, Value: day.AddDate(0, 0, 1)},
		)
	default:
		return nil
	}
}

// textMatch 不区分大小写的子串匹配，转义通配符
func textMatch(dialect string, col clause.Column, term string) clause.Expression {
	pattern := "%" + escapeLike(term) + "%"
	switch dialect {
	case "postgres":
		return clause.Expr{SQL: "? ILIKE ? ESCAPE '\\'", Vars: []any{col, pattern}}
	case "mysql":
		// MySQL 默认转义符即为反斜杠
		return clause.Expr{SQL: "LOWER(?) LIKE ?", Vars: []any{col, strings.ToLower(pattern)}}
	default:
		return clause.Expr{SQL: "LOWER(?) LIKE ? ESCAPE '\\'", Vars: []any{col, strings.ToLower(pattern)}}
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func parseDay(term string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, term, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func splitFields(fields string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, f := range strings.Split(fields, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		names = append(names, f)
	}
	return names
}

// Sort 构建排序，字段不在白名单内是配置/调用缺陷
func (b *QueryBuilder) Sort(entityType EntityType, field, order string) (clause.OrderBy, error) {
	e, err := b.registry.lookup(entityType)
	if err != nil {
		return clause.OrderBy{}, err
	}

	q := b.registry.cfg.Query
	desc := q.DefaultSortDesc
	if field == "" {
		field = q.DefaultSortField
	} else {
		desc = false
	}
	if _, ok := e.sortable[field]; !ok {
		return clause.OrderBy{}, errors.Configurationf("sort field %q is not allowed on %s", field, entityType)
	}
	switch strings.ToLower(order) {
	case "asc":
		desc = false
	case "desc":
		desc = true
	}

	columns := []clause.OrderByColumn{{Column: clause.Column{Table: e.Table, Name: field}, Desc: desc}}
	if field != e.PrimaryKey {
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Table: e.Table, Name: e.PrimaryKey}, Desc: desc})
	}
	return clause.OrderBy{Columns: columns}, nil
}

package repository

import (
	"fmt"
	"strings"

	"github.com/aisgo/ais-wms-core/tenant"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/* ========================================================================
 * Scope Translator - 租户范围翻译器
 * ========================================================================
 * 职责: 把 tenant.Scope 翻译成针对某实体的查询谓词
 *   - 自身列: 直接约束实体表的 company/branch 列
 *   - 经父实体: INNER JOIN 到父表，约束父表的列（父实体不匹配即排除）
 *   - Blocked: 结构上不可能匹配的谓词，绝不是"无过滤"
 * 设计: 新增实体只需注册表增加一行，翻译逻辑不变
 * ======================================================================== */

// matchNothing 任何行都不满足的谓词
var matchNothing = clause.Expr{SQL: "1 = 0"}

// Predicate 租户范围谓词，包含必需的连接
type Predicate struct {
	table string
	joins []string
	expr  clause.Expression
}

// Apply 将谓词应用到查询
func (p Predicate) Apply(db *gorm.DB) *gorm.DB {
	for _, join := range p.joins {
		db = db.Joins(join)
	}
	return db.Where(p.expr)
}

// Scope 以 gorm scope 形式使用，可配合 WithScopes
func (p Predicate) Scope() func(*gorm.DB) *gorm.DB {
	return p.Apply
}

// Joined 是否需要连接父表
func (p Predicate) Joined() bool { return len(p.joins) > 0 }

// Expression 谓词表达式（不含连接）
func (p Predicate) Expression() clause.Expression { return p.expr }

// Translator 租户范围翻译器
type Translator struct {
	registry *Registry
}

// NewTranslator 创建翻译器
func NewTranslator(registry *Registry) *Translator {
	return &Translator{registry: registry}
}

// Translate 翻译实体在 scope 下的可见性谓词
func (t *Translator) Translate(entityType EntityType, scope tenant.Scope) (Predicate, error) {
	e, err := t.registry.lookup(entityType)
	if err != nil {
		return Predicate{}, err
	}
	return e.predicate(scope), nil
}

func (e *entity) predicate(scope tenant.Scope) Predicate {
	return e.scopedPredicate(scope, true)
}

// scopedPredicate liveParents 为 false 时连接不过滤已软删除的父实体（序列读取使用）
func (e *entity) scopedPredicate(scope tenant.Scope, liveParents bool) Predicate {
	joins, owner := e.joinChain(liveParents)
	p := Predicate{table: e.Table, joins: joins}
	if scope.IsBlocked() {
		p.expr = matchNothing
		return p
	}
	p.expr = scopeExpression(owner, e.Scope, scope)
	return p
}

// joinChain 返回连接语句以及持有租户列的表别名
func (e *entity) joinChain(liveParents bool) ([]string, string) {
	prev := e.Table
	joins := make([]string, 0, len(e.Scope.Hops))
	for i, hop := range e.Scope.Hops {
		alias := hopAlias(i, hop)
		var b strings.Builder
		fmt.Fprintf(&b, "INNER JOIN %s AS %s ON %s.%s = %s.%s",
			hop.Table, alias, alias, hop.References, prev, hop.ForeignKey)
		if liveParents && hop.DeletedColumn != "" {
			fmt.Fprintf(&b, " AND %s.%s = 0", alias, hop.DeletedColumn)
		}
		joins = append(joins, b.String())
		prev = alias
	}
	return joins, prev
}

func hopAlias(i int, hop Hop) string {
	return fmt.Sprintf("sp%d_%s", i+1, strings.ToLower(hop.Association))
}

func scopeExpression(table string, path ScopePath, scope tenant.Scope) clause.Expression {
	company := clause.Eq{
		Column: clause.Column{Table: table, Name: path.CompanyColumn},
		Value:  scope.CompanyID(),
	}
	// 只按公司隔离的实体，分店范围退化为公司范围
	if path.BranchColumn == "" || scope.Kind() == tenant.ScopeCompany {
		return company
	}

	branch := clause.Column{Table: table, Name: path.BranchColumn}
	ids := scope.BranchIDs()
	if len(ids) == 1 {
		return clause.And(company, clause.Eq{Column: branch, Value: ids[0]})
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return clause.And(company, clause.IN{Column: branch, Values: values})
}

// ParentVisible 校验经父实体范围的实体在创建前其父实体对 scope 可见
// fk 为子实体第一段连接的外键值
func (t *Translator) ParentVisible(db *gorm.DB, entityType EntityType, scope tenant.Scope, fk any) (bool, error) {
	e, err := t.registry.lookup(entityType)
	if err != nil {
		return false, err
	}
	if e.Scope.IsOwn() {
		return true, nil
	}
	if scope.IsBlocked() {
		return false, nil
	}

	// 从第一个父表出发，复用剩余连接
	first := e.Scope.Hops[0]
	firstAlias := hopAlias(0, first)
	query := db.Table(first.Table + " AS " + firstAlias).
		Where(clause.Eq{Column: clause.Column{Table: firstAlias, Name: first.References}, Value: fk})
	if first.DeletedColumn != "" {
		query = query.Where(clause.Eq{Column: clause.Column{Table: firstAlias, Name: first.DeletedColumn}, Value: 0})
	}
	joins, owner := e.joinChain(true)
	for _, join := range joins[1:] {
		query = query.Joins(join)
	}
	query = query.Where(scopeExpression(owner, e.Scope, scope))

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

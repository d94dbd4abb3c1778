package repository

import (
	"fmt"
	"regexp"

	"github.com/aisgo/ais-wms-core/conf"
	"github.com/aisgo/ais-wms-core/errors"
)

/* ========================================================================
 * Entity Registry - 实体注册表
 * ========================================================================
 * 职责: 每种实体的静态配置
 *   - 租户范围路径: 自身列 / 经父实体连接（显式 join 描述，非字符串路径）
 *   - 字段分类: numeric / text / date，启动时校验，每个字段只出现一次
 *   - 排序白名单
 *   - 参考编号: 列名、序列级别（公司/分店）、补零宽度
 * 设计: 新增实体只需增加一条 EntityDef，调用方无需新增分支
 * ======================================================================== */

// EntityType 实体类型
type EntityType string

// FieldKind 字段分类
type FieldKind int

const (
	FieldNumeric FieldKind = iota + 1
	FieldText
	FieldDate
)

func (k FieldKind) String() string {
	switch k {
	case FieldNumeric:
		return "numeric"
	case FieldText:
		return "text"
	case FieldDate:
		return "date"
	default:
		return "unclassified"
	}
}

// Field 字段分类条目
type Field struct {
	Name string
	Kind FieldKind
}

func Numeric(name string) Field { return Field{Name: name, Kind: FieldNumeric} }
func Text(name string) Field    { return Field{Name: name, Kind: FieldText} }
func Date(name string) Field    { return Field{Name: name, Kind: FieldDate} }

// Hop 一段父实体连接: child.ForeignKey = parent.References
type Hop struct {
	Association   string // 关联名，如 Project
	Table         string // 父表，如 projects
	ForeignKey    string // 子表上的外键列，如 project_id
	References    string // 父表被引用列，默认 id
	DeletedColumn string // 父表软删除标记列，设置后已删除的父实体不参与连接
}

// ScopePath 租户列所在位置
type ScopePath struct {
	Hops          []Hop // 为空表示自身列
	CompanyColumn string
	BranchColumn  string // 可为空: 该实体只按公司隔离
}

// OwnColumns 实体自身携带租户列
func OwnColumns(companyColumn, branchColumn string) ScopePath {
	return ScopePath{CompanyColumn: companyColumn, BranchColumn: branchColumn}
}

// ViaParent 租户列在父实体上（可多段）
func ViaParent(companyColumn, branchColumn string, hops ...Hop) ScopePath {
	return ScopePath{Hops: hops, CompanyColumn: companyColumn, BranchColumn: branchColumn}
}

// IsOwn 是否为自身列
func (p ScopePath) IsOwn() bool { return len(p.Hops) == 0 }

// SequenceLevel 参考编号的序列范围
type SequenceLevel int

const (
	SequenceByCompany SequenceLevel = iota
	SequenceByBranch
)

// Sequence 参考编号配置
type Sequence struct {
	Column string
	Level  SequenceLevel
	Width  int // 0 使用全局默认宽度
}

// EntityDef 实体定义
type EntityDef struct {
	Type       EntityType
	Table      string
	PrimaryKey string // 默认 id
	Scope      ScopePath
	Sequence   *Sequence
	Fields     []Field
	Sortable   []string
}

// entity 校验后的实体定义
type entity struct {
	EntityDef
	fields   map[string]FieldKind
	sortable map[string]struct{}
	width    int
}

// Registry 实体注册表（启动后只读）
type Registry struct {
	cfg      conf.CoreConfig
	entities map[EntityType]*entity
}

// identPattern 标识符白名单（小写，避免 PostgreSQL 大小写折叠问题）
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validateIdent(kind, value string) error {
	if !identPattern.MatchString(value) {
		return fmt.Errorf("invalid %s identifier %q", kind, value)
	}
	return nil
}

// NewRegistry 构建并校验注册表，任何缺陷都在启动时失败
func NewRegistry(cfg conf.CoreConfig, defs ...EntityDef) (*Registry, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, "invalid core config", err)
	}

	r := &Registry{cfg: cfg, entities: make(map[EntityType]*entity, len(defs))}
	for _, def := range defs {
		e, err := r.compile(def)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeConfiguration, err, "entity %q", def.Type)
		}
		if _, dup := r.entities[def.Type]; dup {
			return nil, errors.Configurationf("entity %q registered twice", def.Type)
		}
		r.entities[def.Type] = e
	}
	return r, nil
}

func (r *Registry) compile(def EntityDef) (*entity, error) {
	if def.Type == "" {
		return nil, fmt.Errorf("entity type is required")
	}
	if def.PrimaryKey == "" {
		def.PrimaryKey = "id"
	}
	if err := validateIdent("table", def.Table); err != nil {
		return nil, err
	}
	if err := validateIdent("primary key", def.PrimaryKey); err != nil {
		return nil, err
	}

	p := def.Scope
	if err := validateIdent("company column", p.CompanyColumn); err != nil {
		return nil, err
	}
	if p.BranchColumn != "" {
		if err := validateIdent("branch column", p.BranchColumn); err != nil {
			return nil, err
		}
	}
	// 复制 Hops，补默认值时不修改调用方的切片
	p.Hops = append([]Hop(nil), p.Hops...)
	for i := range p.Hops {
		h := &p.Hops[i]
		if h.References == "" {
			h.References = "id"
		}
		if h.Association == "" {
			return nil, fmt.Errorf("hop %d: association name is required", i)
		}
		for kind, v := range map[string]string{"hop table": h.Table, "foreign key": h.ForeignKey, "references": h.References} {
			if err := validateIdent(kind, v); err != nil {
				return nil, fmt.Errorf("hop %s: %w", h.Association, err)
			}
		}
		if h.DeletedColumn != "" {
			if err := validateIdent("deleted column", h.DeletedColumn); err != nil {
				return nil, fmt.Errorf("hop %s: %w", h.Association, err)
			}
		}
	}
	def.Scope = p

	e := &entity{
		EntityDef: def,
		fields:    make(map[string]FieldKind, len(def.Fields)),
		sortable:  make(map[string]struct{}, len(def.Sortable)+1),
	}
	for _, f := range def.Fields {
		if err := validateIdent("field", f.Name); err != nil {
			return nil, err
		}
		if f.Kind < FieldNumeric || f.Kind > FieldDate {
			return nil, fmt.Errorf("field %q is not classified", f.Name)
		}
		if _, dup := e.fields[f.Name]; dup {
			return nil, fmt.Errorf("field %q classified more than once", f.Name)
		}
		e.fields[f.Name] = f.Kind
	}

	sortable := append([]string{r.cfg.Query.DefaultSortField}, def.Sortable...)
	for _, name := range sortable {
		if _, ok := e.fields[name]; !ok {
			return nil, fmt.Errorf("sortable field %q is not classified", name)
		}
		e.sortable[name] = struct{}{}
	}

	if s := def.Sequence; s != nil {
		if err := validateIdent("reference column", s.Column); err != nil {
			return nil, err
		}
		e.width = s.Width
		if e.width == 0 {
			e.width = r.cfg.Sequence.DefaultWidth
		}
		if e.width < 1 || e.width > r.cfg.Sequence.MaxWidth {
			return nil, fmt.Errorf("reference width %d outside [1, %d]", e.width, r.cfg.Sequence.MaxWidth)
		}
		if s.Level == SequenceByBranch && p.BranchColumn == "" {
			return nil, fmt.Errorf("branch level sequence requires a branch column")
		}
	}
	return e, nil
}

// lookup 未注册的实体是实现缺陷，立即失败
func (r *Registry) lookup(t EntityType) (*entity, error) {
	e, ok := r.entities[t]
	if !ok {
		return nil, errors.Configurationf("entity %q is not registered", t)
	}
	return e, nil
}

// Def 返回实体定义副本
func (r *Registry) Def(t EntityType) (EntityDef, error) {
	e, err := r.lookup(t)
	if err != nil {
		return EntityDef{}, err
	}
	def := e.EntityDef
	def.Scope.Hops = append([]Hop(nil), def.Scope.Hops...)
	return def, nil
}

// FieldKind 返回字段分类
func (r *Registry) FieldKind(t EntityType, field string) (FieldKind, error) {
	e, err := r.lookup(t)
	if err != nil {
		return 0, err
	}
	kind, ok := e.fields[field]
	if !ok {
		return 0, errors.Validationf("field %q is not searchable on %s", field, t)
	}
	return kind, nil
}

// Config 返回生效的核心配置
func (r *Registry) Config() conf.CoreConfig { return r.cfg }

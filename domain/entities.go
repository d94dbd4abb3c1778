package domain

import "github.com/aisgo/ais-wms-core/repository"

// 实体类型
const (
	EntityBranch          repository.EntityType = "branch"
	EntityCustomer        repository.EntityType = "customer"
	EntityOrder           repository.EntityType = "order"
	EntityInvoice         repository.EntityType = "invoice"
	EntityProject         repository.EntityType = "project"
	EntityExpedition      repository.EntityType = "expedition"
	EntityBox             repository.EntityType = "box"
	EntityProductionOrder repository.EntityType = "production_order"
	EntityItem            repository.EntityType = "item"
	EntityMovement        repository.EntityType = "movement"
)

const referenceColumn = "reference_number"

// 经父实体连接
var (
	viaProject = repository.Hop{
		Association:   "Project",
		Table:         "projects",
		ForeignKey:    "project_id",
		DeletedColumn: "deleted",
	}
	viaExpedition = repository.Hop{
		Association:   "Expedition",
		Table:         "expeditions",
		ForeignKey:    "expedition_id",
		DeletedColumn: "deleted",
	}
	viaItem = repository.Hop{
		Association:   "Item",
		Table:         "items",
		ForeignKey:    "item_id",
		DeletedColumn: "deleted",
	}
)

func ownColumns() repository.ScopePath {
	return repository.OwnColumns("company_id", "branch_id")
}

// Definitions 返回全部实体的注册表定义
// 新增实体只需在此追加一条定义
func Definitions() []repository.EntityDef {
	return []repository.EntityDef{
		{
			Type:     EntityBranch,
			Table:    "branches",
			Scope:    repository.OwnColumns("company_id", ""),
			Fields:   []repository.Field{repository.Text("name"), repository.Date("created_at")},
			Sortable: []string{"name"},
		},
		{
			Type:  EntityCustomer,
			Table: "customers",
			Scope: ownColumns(),
			Fields: []repository.Field{
				repository.Text("name"),
				repository.Text("document"),
				repository.Text("email"),
				repository.Date("created_at"),
			},
			Sortable: []string{"name"},
		},
		{
			Type:     EntityOrder,
			Table:    "orders",
			Scope:    ownColumns(),
			Sequence: &repository.Sequence{Column: referenceColumn, Level: repository.SequenceByBranch},
			Fields: []repository.Field{
				repository.Numeric("referral_id"),
				repository.Text("reference_number"),
				repository.Text("observation"),
				repository.Date("created_at"),
			},
			Sortable: []string{"reference_number", "referral_id"},
		},
		{
			Type:     EntityInvoice,
			Table:    "invoices",
			Scope:    ownColumns(),
			Sequence: &repository.Sequence{Column: referenceColumn, Level: repository.SequenceByCompany},
			Fields: []repository.Field{
				repository.Numeric("amount"),
				repository.Text("reference_number"),
				repository.Text("observation"),
				repository.Date("due_at"),
				repository.Date("created_at"),
			},
			Sortable: []string{"reference_number", "amount", "due_at"},
		},
		{
			Type:     EntityProject,
			Table:    "projects",
			Scope:    ownColumns(),
			Fields:   []repository.Field{repository.Text("name"), repository.Date("created_at")},
			Sortable: []string{"name"},
		},
		{
			Type:     EntityExpedition,
			Table:    "expeditions",
			Scope:    repository.ViaParent("company_id", "branch_id", viaProject),
			Sequence: &repository.Sequence{Column: referenceColumn, Level: repository.SequenceByCompany},
			Fields: []repository.Field{
				repository.Text("reference_number"),
				repository.Text("destination"),
				repository.Date("shipped_at"),
				repository.Date("created_at"),
			},
			Sortable: []string{"reference_number", "shipped_at"},
		},
		{
			Type:     EntityBox,
			Table:    "boxes",
			Scope:    repository.ViaParent("company_id", "branch_id", viaExpedition, viaProject),
			Sequence: &repository.Sequence{Column: referenceColumn, Level: repository.SequenceByCompany, Width: 5},
			Fields: []repository.Field{
				repository.Text("reference_number"),
				repository.Text("label"),
				repository.Numeric("weight_kg"),
				repository.Date("created_at"),
			},
			Sortable: []string{"reference_number", "weight_kg"},
		},
		{
			Type:     EntityProductionOrder,
			Table:    "production_orders",
			Scope:    repository.ViaParent("company_id", "branch_id", viaProject),
			Sequence: &repository.Sequence{Column: referenceColumn, Level: repository.SequenceByCompany},
			Fields: []repository.Field{
				repository.Text("reference_number"),
				repository.Text("description"),
				repository.Numeric("quantity"),
				repository.Date("created_at"),
			},
			Sortable: []string{"reference_number", "quantity"},
		},
		{
			Type:  EntityItem,
			Table: "items",
			Scope: ownColumns(),
			Fields: []repository.Field{
				repository.Text("sku"),
				repository.Text("description"),
				repository.Date("created_at"),
			},
			Sortable: []string{"sku"},
		},
		{
			Type:     EntityMovement,
			Table:    "movements",
			Scope:    repository.ViaParent("company_id", "branch_id", viaItem),
			Sequence: &repository.Sequence{Column: referenceColumn, Level: repository.SequenceByCompany},
			Fields: []repository.Field{
				repository.Text("reference_number"),
				repository.Text("kind"),
				repository.Numeric("quantity"),
				repository.Date("created_at"),
			},
			Sortable: []string{"reference_number", "quantity"},
		},
	}
}

package domain

import (
	"time"

	"github.com/aisgo/ais-wms-core/repository"
)

/* ========================================================================
 * Domain Models - 后台实体模型
 * ========================================================================
 * 职责: 租户层级（公司/分店）与各业务实体
 *   - 自身携带租户列: Customer, Order, Invoice, Project, Item
 *   - 经父实体取得租户: Expedition, ProductionOrder (Project),
 *                      Box (Expedition -> Project), Movement (Item)
 * ======================================================================== */

// Company 公司（租户顶层）
type Company struct {
	repository.BaseModel
	Name string `json:"name" gorm:"column:name;type:varchar(200);not null"`
}

func (Company) TableName() string { return "companies" }

// Branch 分店
type Branch struct {
	repository.BaseModel
	CompanyID string `json:"companyId" gorm:"column:company_id;type:char(26);not null;index"`
	Name      string `json:"name" gorm:"column:name;type:varchar(200);not null"`
}

func (Branch) TableName() string { return "branches" }

// Customer 客户
type Customer struct {
	repository.BaseModel
	repository.TenantColumns
	Name     string `json:"name" gorm:"column:name;type:varchar(200);not null"`
	Document string `json:"document" gorm:"column:document;type:varchar(32)"`
	Email    string `json:"email" gorm:"column:email;type:varchar(255)"`
}

func (Customer) TableName() string { return "customers" }

// Order 销售订单
type Order struct {
	repository.BaseModel
	repository.TenantColumns
	repository.Issuer
	ReferenceNumber string  `json:"referenceNumber" gorm:"column:reference_number;type:varchar(32);index"`
	ReferralID      int64   `json:"referralId" gorm:"column:referral_id"`
	Observation     string  `json:"observation" gorm:"column:observation;type:text"`
	CustomerID      *string `json:"customerId" gorm:"column:customer_id;type:char(26)"`
}

func (Order) TableName() string { return "orders" }

// Invoice 发票
type Invoice struct {
	repository.BaseModel
	repository.TenantColumns
	repository.Issuer
	ReferenceNumber string     `json:"referenceNumber" gorm:"column:reference_number;type:varchar(32);index"`
	Amount          float64    `json:"amount" gorm:"column:amount;type:decimal(14,2)"`
	Observation     string     `json:"observation" gorm:"column:observation;type:text"`
	DueAt           *time.Time `json:"dueAt" gorm:"column:due_at"`
}

func (Invoice) TableName() string { return "invoices" }

// Project 项目（Expedition / ProductionOrder 的聚合根）
type Project struct {
	repository.BaseModel
	repository.TenantColumns
	Name string `json:"name" gorm:"column:name;type:varchar(200);not null"`
}

func (Project) TableName() string { return "projects" }

// Expedition 发运单，租户来自 Project
type Expedition struct {
	repository.BaseModel
	repository.Issuer
	ProjectID       string     `json:"projectId" gorm:"column:project_id;type:char(26);not null;index"`
	Project         *Project   `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	ReferenceNumber string     `json:"referenceNumber" gorm:"column:reference_number;type:varchar(32);index"`
	Destination     string     `json:"destination" gorm:"column:destination;type:varchar(255)"`
	ShippedAt       *time.Time `json:"shippedAt" gorm:"column:shipped_at"`
}

func (Expedition) TableName() string { return "expeditions" }

// Box 箱，租户来自 Expedition 所属的 Project
type Box struct {
	repository.BaseModel
	ExpeditionID    string      `json:"expeditionId" gorm:"column:expedition_id;type:char(26);not null;index"`
	Expedition      *Expedition `json:"expedition,omitempty" gorm:"foreignKey:ExpeditionID"`
	ReferenceNumber string      `json:"referenceNumber" gorm:"column:reference_number;type:varchar(32);index"`
	Label           string      `json:"label" gorm:"column:label;type:varchar(120)"`
	WeightKg        float64     `json:"weightKg" gorm:"column:weight_kg"`
}

func (Box) TableName() string { return "boxes" }

// ProductionOrder 生产订单，租户来自 Project
type ProductionOrder struct {
	repository.BaseModel
	repository.Issuer
	ProjectID       string `json:"projectId" gorm:"column:project_id;type:char(26);not null;index"`
	ReferenceNumber string `json:"referenceNumber" gorm:"column:reference_number;type:varchar(32);index"`
	Description     string `json:"description" gorm:"column:description;type:text"`
	Quantity        int64  `json:"quantity" gorm:"column:quantity"`
}

func (ProductionOrder) TableName() string { return "production_orders" }

// Item 库存物料
type Item struct {
	repository.BaseModel
	repository.TenantColumns
	SKU         string `json:"sku" gorm:"column:sku;type:varchar(64);not null"`
	Description string `json:"description" gorm:"column:description;type:text"`
}

func (Item) TableName() string { return "items" }

// Movement 库存移动，租户来自 Item
type Movement struct {
	repository.BaseModel
	repository.Issuer
	ItemID          string  `json:"itemId" gorm:"column:item_id;type:char(26);not null;index"`
	ReferenceNumber string  `json:"referenceNumber" gorm:"column:reference_number;type:varchar(32);index"`
	Kind            string  `json:"kind" gorm:"column:kind;type:varchar(16)"` // in, out, adjust
	Quantity        float64 `json:"quantity" gorm:"column:quantity"`
}

func (Movement) TableName() string { return "movements" }

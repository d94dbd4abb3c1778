package repository

import (
	"time"

	"github.com/aisgo/ais-wms-core/tenant"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/plugin/soft_delete"
)

/* ========================================================================
 * Base Model - 基础模型
 * ========================================================================
 * 职责: 定义所有模型的公共字段和方法
 * 使用: 所有 GORM 模型都应嵌入此结构体
 *   - BaseModel:     ULID 主键、创建/更新时间、软删除标记
 *   - TenantColumns: 自身携带租户列的实体嵌入
 *   - Issuer:        记录签发人（用户或服务账号，二选一）
 * ======================================================================== */

// BaseModel 所有模型的基类
type BaseModel struct {
	ID        string                `json:"id" gorm:"primaryKey;type:char(26);comment:主键ID(ULID)"`
	CreatedAt time.Time             `json:"createdAt" gorm:"column:created_at;autoCreateTime;index;comment:创建时间"`
	UpdatedAt time.Time             `json:"updatedAt" gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
	Deleted   soft_delete.DeletedAt `json:"-" gorm:"column:deleted;default:0;softDelete:flag;comment:软删除标记(1=已删除)"`
}

// BeforeCreate GORM 钩子：在创建记录前生成 ULID
// ULID 按时间有序，可作为同一创建时间下的稳定排序
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	return nil
}

// TenantColumns 租户列
type TenantColumns struct {
	CompanyID *string `json:"companyId" gorm:"column:company_id;type:char(26);index"`
	BranchID  *string `json:"branchId" gorm:"column:branch_id;type:char(26);index"`
}

// Issuer 签发人
type Issuer struct {
	IssuedByUserID    *string `json:"issuedByUserId,omitempty" gorm:"column:issued_by_user_id;type:char(26)"`
	IssuedByAccountID *string `json:"issuedByAccountId,omitempty" gorm:"column:issued_by_account_id;type:char(26)"`
}

// SetIssuer 按 Actor 的具体类型写入对应列
func (i *Issuer) SetIssuer(actor tenant.Actor) {
	i.IssuedByUserID, i.IssuedByAccountID = nil, nil
	switch a := actor.(type) {
	case tenant.UserActor:
		id := a.ID
		i.IssuedByUserID = &id
	case tenant.ServiceAccountActor:
		id := a.ID
		i.IssuedByAccountID = &id
	}
}

// IssuerSetter 可记录签发人的模型
type IssuerSetter interface {
	SetIssuer(actor tenant.Actor)
}

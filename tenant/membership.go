package tenant

import (
	"context"
	"time"

	"github.com/aisgo/ais-wms-core/errors"

	ulidv2 "github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/plugin/soft_delete"
)

// Membership links a user to one branch and restricts the user's default
// visibility to the set of such branches.
type Membership struct {
	ID        string                `json:"id" gorm:"column:id;type:char(26);primaryKey"`
	UserID    string                `json:"user_id" gorm:"column:user_id;type:char(26);not null;uniqueIndex:idx_membership_user_branch"`
	BranchID  string                `json:"branch_id" gorm:"column:branch_id;type:char(26);not null;uniqueIndex:idx_membership_user_branch"`
	CreatedAt time.Time             `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	Deleted   soft_delete.DeletedAt `json:"-" gorm:"column:deleted;default:0;softDelete:flag"`
}

func (Membership) TableName() string { return "memberships" }

// BeforeCreate assigns a ULID primary key.
func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = ulidv2.Make().String()
	}
	return nil
}

// MembershipStore loads a user's branch memberships.
type MembershipStore interface {
	BranchIDs(ctx context.Context, userID string) ([]string, error)
}

// GormMembershipStore reads memberships through gorm.
type GormMembershipStore struct {
	db *gorm.DB
}

// NewGormMembershipStore creates a gorm backed MembershipStore.
func NewGormMembershipStore(db *gorm.DB) *GormMembershipStore {
	return &GormMembershipStore{db: db}
}

// BranchIDs returns the branch ids of the user's active memberships. A lookup
// failure is a data access error, never an empty result.
func (s *GormMembershipStore) BranchIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Membership{}).
		Where("user_id = ?", userID).
		Order("branch_id").
		Pluck("branch_id", &ids).Error
	if err != nil {
		return nil, errors.DataAccess("failed to load memberships", err)
	}
	return ids, nil
}

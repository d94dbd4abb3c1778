package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aisgo/ais-wms-core/conf"
	"github.com/aisgo/ais-wms-core/logger"
	"github.com/aisgo/ais-wms-core/tenant"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testInvoice    EntityType = "invoice"
	testOrder      EntityType = "order"
	testProject    EntityType = "project"
	testExpedition EntityType = "expedition"
	testBox        EntityType = "box"
)

type invoiceModel struct {
	BaseModel
	TenantColumns
	Issuer
	ReferenceNumber string `gorm:"column:reference_number"`
	ReferralID      int64  `gorm:"column:referral_id"`
	Observation     string `gorm:"column:observation"`
}

func (invoiceModel) TableName() string { return "invoices" }

type orderModel struct {
	BaseModel
	TenantColumns
	ReferenceNumber string `gorm:"column:reference_number"`
}

func (orderModel) TableName() string { return "orders" }

type projectModel struct {
	BaseModel
	TenantColumns
	Name string `gorm:"column:name"`
}

func (projectModel) TableName() string { return "projects" }

type expeditionModel struct {
	BaseModel
	ProjectID       string        `gorm:"column:project_id"`
	Project         *projectModel `gorm:"foreignKey:ProjectID"`
	ReferenceNumber string        `gorm:"column:reference_number"`
	Destination     string        `gorm:"column:destination"`
}

func (expeditionModel) TableName() string { return "expeditions" }

type boxModel struct {
	BaseModel
	ExpeditionID string `gorm:"column:expedition_id"`
	Label        string `gorm:"column:label"`
}

func (boxModel) TableName() string { return "boxes" }

var projectHop = Hop{Association: "Project", Table: "projects", ForeignKey: "project_id", DeletedColumn: "deleted"}

func testDefs() []EntityDef {
	return []EntityDef{
		{
			Type:     testInvoice,
			Table:    "invoices",
			Scope:    OwnColumns("company_id", "branch_id"),
			Sequence: &Sequence{Column: "reference_number", Level: SequenceByCompany},
			Fields: []Field{
				Numeric("referral_id"),
				Text("observation"),
				Text("reference_number"),
				Date("created_at"),
			},
			Sortable: []string{"referral_id", "reference_number"},
		},
		{
			Type:     testOrder,
			Table:    "orders",
			Scope:    OwnColumns("company_id", "branch_id"),
			Sequence: &Sequence{Column: "reference_number", Level: SequenceByBranch},
			Fields:   []Field{Text("reference_number"), Date("created_at")},
		},
		{
			Type:   testProject,
			Table:  "projects",
			Scope:  OwnColumns("company_id", "branch_id"),
			Fields: []Field{Text("name"), Date("created_at")},
		},
		{
			Type:     testExpedition,
			Table:    "expeditions",
			Scope:    ViaParent("company_id", "branch_id", projectHop),
			Sequence: &Sequence{Column: "reference_number", Level: SequenceByCompany},
			Fields:   []Field{Text("reference_number"), Text("destination"), Date("created_at")},
		},
		{
			Type:  testBox,
			Table: "boxes",
			Scope: ViaParent("company_id", "branch_id",
				Hop{Association: "Expedition", Table: "expeditions", ForeignKey: "expedition_id"},
				projectHop,
			),
			Fields: []Field{Text("label"), Date("created_at")},
		},
	}
}

// openTestDB 文件库，事务以 BEGIN IMMEDIATE 开始，与 none 锁策略一致
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "core.db") + "?_txlock=immediate&_busy_timeout=30000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&invoiceModel{}, &orderModel{}, &projectModel{}, &expeditionModel{}, &boxModel{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func testConfig() conf.CoreConfig {
	cfg := conf.DefaultCoreConfig()
	cfg.Sequence.RetryDelay = time.Millisecond
	cfg.Tx.RetryDelay = time.Millisecond
	cfg.Tx.MaxAttempts = 10
	return cfg
}

func newTestCore(t *testing.T, db *gorm.DB) *Core {
	t.Helper()
	return newTestCoreWithConfig(t, db, testConfig())
}

func newTestCoreWithConfig(t *testing.T, db *gorm.DB, cfg conf.CoreConfig) *Core {
	t.Helper()
	registry, err := NewRegistry(cfg, testDefs()...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	core, err := NewCore(CoreParams{DB: db, Registry: registry, Logger: logger.NewNop()})
	if err != nil {
		t.Fatalf("core: %v", err)
	}
	return core
}

func newRepo[T any](t *testing.T, core *Core, entityType EntityType) *ScopedRepository[T] {
	t.Helper()
	repo, err := NewScopedRepository[T](core, entityType)
	if err != nil {
		t.Fatalf("repository %s: %v", entityType, err)
	}
	return repo
}

func scopedCtx(scope tenant.Scope) context.Context {
	return tenant.WithScope(context.Background(), scope)
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

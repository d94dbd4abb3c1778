package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/aisgo/ais-wms-core/errors"
	"github.com/aisgo/ais-wms-core/tenant"

	"gorm.io/gorm"
)

func TestFormatReference(t *testing.T) {
	cases := []struct {
		n     int64
		width int
		want  string
	}{
		{1, 3, "001"},
		{42, 5, "00042"},
		{999, 3, "999"},
		{1000, 3, "1000"},
	}
	for _, c := range cases {
		if got := formatReference(c.n, c.width); got != c.want {
			t.Fatalf("formatReference(%d, %d) = %q, want %q", c.n, c.width, got, c.want)
		}
	}
}

func TestParseReferenceStrict(t *testing.T) {
	if n, err := parseReference(""); err != nil || n != 0 {
		t.Fatalf("empty reference: n=%d err=%v", n, err)
	}
	if n, err := parseReference("007"); err != nil || n != 7 {
		t.Fatalf("padded reference: n=%d err=%v", n, err)
	}
	for _, bad := range []string{"A-12", "12 ", "-3", "99999999999999999999"} {
		if _, err := parseReference(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func createInvoice(t *testing.T, core *Core, repo *ScopedRepository[invoiceModel], scope tenant.Scope) string {
	t.Helper()
	var ref string
	err := core.Tx.Execute(scopedCtx(scope), func(ctx context.Context) error {
		inv := &invoiceModel{Observation: "test"}
		if err := repo.Create(ctx, inv); err != nil {
			return err
		}
		ref = inv.ReferenceNumber
		return nil
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return ref
}

func TestAllocateSequentialInvoices(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)
	repo := newRepo[invoiceModel](t, core, testInvoice)
	scope := tenant.CompanyScope("C1")

	for i, want := range []string{"001", "002", "003"} {
		if got := createInvoice(t, core, repo, scope); got != want {
			t.Fatalf("invoice %d: got %q, want %q", i, got, want)
		}
	}
}

func TestAllocateConcurrentUnique(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)
	repo := newRepo[invoiceModel](t, core, testInvoice)
	scope := tenant.CompanyScope("C1")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- core.Tx.Execute(scopedCtx(scope), func(ctx context.Context) error {
				return repo.Create(ctx, &invoiceModel{})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent create: %v", err)
		}
	}

	var refs []string
	if err := db.Model(&invoiceModel{}).Where("company_id = ?", "C1").Pluck("reference_number", &refs).Error; err != nil {
		t.Fatalf("pluck: %v", err)
	}
	if len(refs) != n {
		t.Fatalf("expected %d invoices, got %d", n, len(refs))
	}
	sort.Strings(refs)
	for i, ref := range refs {
		if want := fmt.Sprintf("%03d", i+1); ref != want {
			t.Fatalf("reference %d: got %q, want %q (duplicates or gaps)", i, ref, want)
		}
	}
}

func TestAllocateRollbackDoesNotAdvance(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)
	repo := newRepo[invoiceModel](t, core, testInvoice)
	scope := tenant.CompanyScope("C1")

	createInvoice(t, core, repo, scope)

	errAbort := stderrors.New("abort")
	var inside string
	err := core.Tx.Execute(scopedCtx(scope), func(ctx context.Context) error {
		inv := &invoiceModel{}
		if err := repo.Create(ctx, inv); err != nil {
			return err
		}
		inside = inv.ReferenceNumber
		return errAbort
	})
	if err == nil {
		t.Fatalf("expected rollback error")
	}
	if inside != "002" {
		t.Fatalf("expected 002 inside rolled back tx, got %q", inside)
	}

	if got := createInvoice(t, core, repo, scope); got != "002" {
		t.Fatalf("expected 002 after rollback, got %q", got)
	}
}

func TestAllocateCountsSoftDeletedRows(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)
	repo := newRepo[invoiceModel](t, core, testInvoice)
	scope := tenant.CompanyScope("C1")

	createInvoice(t, core, repo, scope)
	if err := db.Where("reference_number = ?", "001").Delete(&invoiceModel{}).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if got := createInvoice(t, core, repo, scope); got != "002" {
		t.Fatalf("soft deleted reference must not be reused, got %q", got)
	}
}

func TestAllocateCountsChildrenOfDeletedParents(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)
	projects := newRepo[projectModel](t, core, testProject)
	expeditions := newRepo[expeditionModel](t, core, testExpedition)
	scope := tenant.CompanyScope("C1")

	createProject := func() string {
		p := &projectModel{Name: "p"}
		if err := core.Tx.Execute(scopedCtx(scope), func(ctx context.Context) error {
			return projects.Create(ctx, p)
		}); err != nil {
			t.Fatalf("create project: %v", err)
		}
		return p.ID
	}
	createExpedition := func(projectID string) string {
		e := &expeditionModel{ProjectID: projectID}
		if err := core.Tx.Execute(scopedCtx(scope), func(ctx context.Context) error {
			return expeditions.Create(ctx, e)
		}); err != nil {
			t.Fatalf("create expedition: %v", err)
		}
		return e.ReferenceNumber
	}

	p1, p2 := createProject(), createProject()
	if got := createExpedition(p1); got != "001" {
		t.Fatalf("first expedition: got %q", got)
	}
	if err := db.Delete(&projectModel{}, "id = ?", p1).Error; err != nil {
		t.Fatalf("soft delete project: %v", err)
	}
	if got := createExpedition(p2); got != "002" {
		t.Fatalf("reference of an expedition under a deleted project must not be reused, got %q", got)
	}

	// 读取仍隐藏已删除父实体下的子实体
	n, err := expeditions.Count(scopedCtx(scope))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 visible expedition, got %d", n)
	}
}

func TestAllocateScopeIsolation(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)
	repo := newRepo[invoiceModel](t, core, testInvoice)

	x, y := tenant.CompanyScope("X"), tenant.CompanyScope("Y")
	createInvoice(t, core, repo, x)
	createInvoice(t, core, repo, x)
	if got := createInvoice(t, core, repo, y); got != "001" {
		t.Fatalf("company Y must start at 001, got %q", got)
	}
	if got := createInvoice(t, core, repo, x); got != "003" {
		t.Fatalf("company X must continue at 003, got %q", got)
	}
}

func TestAllocateBranchLevel(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)
	repo := newRepo[orderModel](t, core, testOrder)

	create := func(scope tenant.Scope) (string, error) {
		var ref string
		err := core.Tx.Execute(scopedCtx(scope), func(ctx context.Context) error {
			o := &orderModel{}
			if err := repo.Create(ctx, o); err != nil {
				return err
			}
			ref = o.ReferenceNumber
			return nil
		})
		return ref, err
	}

	for _, want := range []string{"001", "002"} {
		got, err := create(tenant.BranchScope("C1", "B1"))
		if err != nil || got != want {
			t.Fatalf("branch B1: got %q err=%v, want %q", got, err, want)
		}
	}
	if got, err := create(tenant.BranchScope("C1", "B2")); err != nil || got != "001" {
		t.Fatalf("branch B2 must start at 001, got %q err=%v", got, err)
	}

	// 公司范围无法确定分店序列
	if _, err := create(tenant.CompanyScope("C1")); errors.Code(err) != errors.ErrCodeConfiguration {
		t.Fatalf("expected configuration error without a branch, got %v", err)
	}
}

func TestAllocateBlockedScope(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := core.Allocator.Allocate(context.Background(), tx, testInvoice, tenant.Blocked())
		return err
	})
	if errors.Code(err) != errors.ErrCodeConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAllocateRequiresTransaction(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)

	_, err := core.Allocator.Allocate(context.Background(), db, testInvoice, tenant.CompanyScope("C1"))
	if errors.Code(err) != errors.ErrCodeConfiguration {
		t.Fatalf("expected configuration error outside a transaction, got %v", err)
	}
}

func TestAllocateUnsequencedEntity(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := core.Allocator.Allocate(context.Background(), tx, testProject, tenant.CompanyScope("C1"))
		return err
	})
	if errors.Code(err) != errors.ErrCodeConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAllocateWidensPastPadding(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)

	seed := &invoiceModel{TenantColumns: TenantColumns{CompanyID: strPtr("C1")}, ReferenceNumber: "999"}
	if err := db.Create(seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	allocate := func() string {
		var ref string
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			ref, err = core.Allocator.Allocate(context.Background(), tx, testInvoice, tenant.CompanyScope("C1"))
			if err != nil {
				return err
			}
			return tx.Create(&invoiceModel{TenantColumns: TenantColumns{CompanyID: strPtr("C1")}, ReferenceNumber: ref}).Error
		})
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		return ref
	}

	if got := allocate(); got != "1000" {
		t.Fatalf("expected 1000, got %q", got)
	}
	// "1000" < "999" 按字典序，必须按长度优先比较
	if got := allocate(); got != "1001" {
		t.Fatalf("expected 1001, got %q", got)
	}
}

func TestAllocateRejectsMalformedReference(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)

	seed := &invoiceModel{TenantColumns: TenantColumns{CompanyID: strPtr("C1")}, ReferenceNumber: "12A"}
	if err := db.Create(seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := core.Allocator.Allocate(context.Background(), tx, testInvoice, tenant.CompanyScope("C1"))
		return err
	})
	if errors.Code(err) != errors.ErrCodeInternal {
		t.Fatalf("expected internal error for malformed reference, got %v", err)
	}
}

func TestAllocateViaParentUsesParentCompany(t *testing.T) {
	db := openTestDB(t)
	core := newTestCore(t, db)
	projects := newRepo[projectModel](t, core, testProject)
	expeditions := newRepo[expeditionModel](t, core, testExpedition)

	newProject := func(scope tenant.Scope) string {
		p := &projectModel{Name: "p"}
		err := core.Tx.Execute(scopedCtx(scope), func(ctx context.Context) error {
			return projects.Create(ctx, p)
		})
		if err != nil {
			t.Fatalf("create project: %v", err)
		}
		return p.ID
	}
	newExpedition := func(scope tenant.Scope, projectID string) (string, error) {
		e := &expeditionModel{ProjectID: projectID}
		err := core.Tx.Execute(scopedCtx(scope), func(ctx context.Context) error {
			return expeditions.Create(ctx, e)
		})
		return e.ReferenceNumber, err
	}

	c1, c2 := tenant.CompanyScope("C1"), tenant.CompanyScope("C2")
	p1, p2 := newProject(c1), newProject(c2)

	for _, want := range []string{"001", "002"} {
		if got, err := newExpedition(c1, p1); err != nil || got != want {
			t.Fatalf("C1 expedition: got %q err=%v, want %q", got, err, want)
		}
	}
	if got, err := newExpedition(c2, p2); err != nil || got != "001" {
		t.Fatalf("C2 expedition: got %q err=%v, want 001", got, err)
	}

	// 父实体不在 scope 内
	if _, err := newExpedition(c1, p2); errors.Code(err) != errors.ErrCodePermissionDenied {
		t.Fatalf("expected access denied for foreign parent, got %v", err)
	}
}

package tenant

import (
	"context"
	stderrors "errors"
	"slices"
	"testing"

	"github.com/aisgo/ais-wms-core/errors"
	"github.com/aisgo/ais-wms-core/logger"

	ulidv2 "github.com/oklog/ulid/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubMemberships struct {
	ids   map[string][]string
	err   error
	calls int
}

func (s *stubMemberships) BranchIDs(ctx context.Context, userID string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.ids[userID], nil
}

func TestResolveCompanyClaim(t *testing.T) {
	store := &stubMemberships{}
	r := NewResolver(store, logger.NewNop())

	scope, err := r.Resolve(context.Background(), Principal{Claim: &TenantClaim{Kind: ClaimCompany, ID: "c1"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if scope.Kind() != ScopeCompany || scope.CompanyID() != "c1" {
		t.Fatalf("unexpected scope: %s", scope)
	}
	if store.calls != 0 {
		t.Fatalf("claims must not hit the membership store")
	}
}

func TestResolveBranchClaim(t *testing.T) {
	r := NewResolver(&stubMemberships{}, logger.NewNop())

	scope, err := r.Resolve(context.Background(), Principal{Claim: &TenantClaim{Kind: ClaimBranch, ID: "b1", CompanyID: "c1"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	branch, ok := scope.SingleBranch()
	if scope.Kind() != ScopeBranch || scope.CompanyID() != "c1" || !ok || branch != "b1" {
		t.Fatalf("unexpected scope: %s", scope)
	}

	// branch claim without parent company is malformed
	scope, err = r.Resolve(context.Background(), Principal{Claim: &TenantClaim{Kind: ClaimBranch, ID: "b1"}})
	if err != nil || !scope.IsBlocked() {
		t.Fatalf("expected blocked scope, got %s (%v)", scope, err)
	}
}

func TestResolveUserMemberships(t *testing.T) {
	store := &stubMemberships{ids: map[string][]string{
		"u-multi": {"b2", "b1", "b2"},
	}}
	r := NewResolver(store, logger.NewNop())

	scope, err := r.Resolve(context.Background(), Principal{User: &User{ID: "u-none", CompanyID: "c1"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if scope.Kind() != ScopeCompany || scope.CompanyID() != "c1" {
		t.Fatalf("user without memberships must see the company, got %s", scope)
	}

	scope, err = r.Resolve(context.Background(), Principal{User: &User{ID: "u-multi", CompanyID: "c1"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if scope.Kind() != ScopeBranchSet || !slices.Equal(scope.BranchIDs(), []string{"b1", "b2"}) {
		t.Fatalf("unexpected scope: %s", scope)
	}
}

func TestResolveAnonymousIsBlocked(t *testing.T) {
	r := NewResolver(&stubMemberships{}, logger.NewNop())

	for _, p := range []Principal{{}, {User: &User{ID: "u1"}}, {Claim: &TenantClaim{Kind: "team", ID: "x"}}} {
		scope, err := r.Resolve(context.Background(), p)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if !scope.IsBlocked() {
			t.Fatalf("expected blocked scope, got %s", scope)
		}
		if err := scope.Require(); errors.Code(err) != errors.ErrCodePermissionDenied {
			t.Fatalf("expected access denied, got %v", err)
		}
	}
}

func TestResolveMembershipFailurePropagates(t *testing.T) {
	cause := stderrors.New("connection reset")
	r := NewResolver(&stubMemberships{err: errors.DataAccess("failed to load memberships", cause)}, logger.NewNop())

	scope, err := r.Resolve(context.Background(), Principal{User: &User{ID: "u1", CompanyID: "c1"}})
	if err == nil {
		t.Fatalf("expected error, got scope %s", scope)
	}
	if !stderrors.Is(err, cause) || errors.Kind(err) != errors.KindDataAccess {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scope.IsBlocked() {
		t.Fatalf("failed resolution must not grant visibility")
	}
}

func TestResolveContext(t *testing.T) {
	r := NewResolver(&stubMemberships{}, logger.NewNop())
	ctx := WithPrincipal(context.Background(), Principal{Claim: &TenantClaim{Kind: ClaimCompany, ID: "c9"}})

	ctx, scope, err := r.ResolveContext(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := ScopeFromContext(ctx); got.CompanyID() != "c9" || got.Kind() != scope.Kind() {
		t.Fatalf("scope not stored in context: %s", got)
	}
	if !ScopeFromContext(context.Background()).IsBlocked() {
		t.Fatalf("missing scope must be blocked")
	}
}

func TestGormMembershipStore(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&Membership{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	user := ulidv2.Make().String()
	b1, b2 := ulidv2.Make().String(), ulidv2.Make().String()
	rows := []*Membership{{UserID: user, BranchID: b1}, {UserID: user, BranchID: b2}, {UserID: "other", BranchID: b1}}
	if err := db.Create(rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Delete(rows[1]).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	ids, err := NewGormMembershipStore(db).BranchIDs(context.Background(), user)
	if err != nil {
		t.Fatalf("branch ids: %v", err)
	}
	if !slices.Equal(ids, []string{b1}) {
		t.Fatalf("expected only active membership, got %v", ids)
	}

	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	if _, err := NewGormMembershipStore(db).BranchIDs(context.Background(), user); errors.Kind(err) != errors.KindDataAccess {
		t.Fatalf("expected data access error on closed db, got %v", err)
	}
}

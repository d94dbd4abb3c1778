package tenant

import (
	"context"

	"github.com/aisgo/ais-wms-core/logger"

	"go.uber.org/zap"
)

/* ========================================================================
 * Tenant Context Resolver
 * ========================================================================
 * 职责: 根据认证主体计算本次请求的可见范围
 *   - company 声明   -> {companyId}
 *   - branch 声明    -> {companyId, branchId}
 *   - 用户无成员关系  -> {companyId}
 *   - 用户有成员关系  -> {companyId, branchId ∈ memberships}
 *   - 其他           -> Blocked
 * ======================================================================== */

// Resolver computes the visibility scope of a principal.
type Resolver struct {
	memberships MembershipStore
	log         *logger.Logger
}

// NewResolver creates a Resolver.
func NewResolver(memberships MembershipStore, log *logger.Logger) *Resolver {
	return &Resolver{memberships: memberships, log: log}
}

// Resolve returns the principal's scope. It is read-only; only a failed
// membership lookup returns an error.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (Scope, error) {
	scope, err := r.resolve(ctx, p)
	if err != nil {
		return Blocked(), err
	}
	r.log.WithContext(ctx).Debug("tenant scope resolved",
		zap.Stringer("kind", scope.Kind()),
		zap.String("company_id", scope.CompanyID()),
	)
	return scope, nil
}

func (r *Resolver) resolve(ctx context.Context, p Principal) (Scope, error) {
	if c := p.Claim; c != nil {
		switch c.Kind {
		case ClaimCompany:
			return CompanyScope(c.ID), nil
		case ClaimBranch:
			return BranchScope(c.CompanyID, c.ID), nil
		default:
			r.log.WithContext(ctx).Warn("unknown tenant claim kind", zap.String("kind", string(c.Kind)))
			return Blocked(), nil
		}
	}

	u := p.User
	if u == nil || u.ID == "" || u.CompanyID == "" {
		return Blocked(), nil
	}

	branchIDs, err := r.memberships.BranchIDs(ctx, u.ID)
	if err != nil {
		return Blocked(), err
	}
	if len(branchIDs) == 0 {
		return CompanyScope(u.CompanyID), nil
	}
	return BranchSetScope(u.CompanyID, branchIDs), nil
}

// ResolveContext resolves the principal stored in ctx and returns a context
// carrying the scope as well.
func (r *Resolver) ResolveContext(ctx context.Context) (context.Context, Scope, error) {
	p, _ := PrincipalFromContext(ctx)
	scope, err := r.Resolve(ctx, p)
	if err != nil {
		return ctx, scope, err
	}
	return WithScope(ctx, scope), scope, nil
}

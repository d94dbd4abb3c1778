package tenant

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aisgo/ais-wms-core/errors"
)

// ScopeKind identifies the shape of a resolved Scope.
type ScopeKind int

const (
	// ScopeBlocked matches nothing. It is the zero value.
	ScopeBlocked ScopeKind = iota
	// ScopeCompany grants whole-company visibility.
	ScopeCompany
	// ScopeBranch restricts visibility to one branch of the company.
	ScopeBranch
	// ScopeBranchSet restricts visibility to the user's member branches.
	ScopeBranchSet
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeCompany:
		return "company"
	case ScopeBranch:
		return "branch"
	case ScopeBranchSet:
		return "branch_set"
	default:
		return "blocked"
	}
}

// Scope is the immutable visibility of one request. Fields are unexported so a
// Scope can only be built through the constructors below; the zero value is
// Blocked.
type Scope struct {
	kind      ScopeKind
	companyID string
	branchIDs []string
}

// Blocked returns a scope that matches no row.
func Blocked() Scope {
	return Scope{}
}

// CompanyScope returns whole-company visibility. An empty id yields Blocked.
func CompanyScope(companyID string) Scope {
	if companyID == "" {
		return Blocked()
	}
	return Scope{kind: ScopeCompany, companyID: companyID}
}

// BranchScope returns single-branch visibility. Empty ids yield Blocked.
func BranchScope(companyID, branchID string) Scope {
	if companyID == "" || branchID == "" {
		return Blocked()
	}
	return Scope{kind: ScopeBranch, companyID: companyID, branchIDs: []string{branchID}}
}

// BranchSetScope returns visibility over a set of branches. Duplicates and
// empty ids are dropped; an empty set yields Blocked, never company-wide.
func BranchSetScope(companyID string, branchIDs []string) Scope {
	if companyID == "" {
		return Blocked()
	}
	set := make([]string, 0, len(branchIDs))
	for _, id := range branchIDs {
		if id != "" {
			set = append(set, id)
		}
	}
	slices.Sort(set)
	set = slices.Compact(set)
	if len(set) == 0 {
		return Blocked()
	}
	return Scope{kind: ScopeBranchSet, companyID: companyID, branchIDs: set}
}

func (s Scope) Kind() ScopeKind   { return s.kind }
func (s Scope) IsBlocked() bool   { return s.kind == ScopeBlocked }
func (s Scope) CompanyID() string { return s.companyID }

// BranchIDs returns a copy of the visible branch ids (nil for company scope).
func (s Scope) BranchIDs() []string {
	if len(s.branchIDs) == 0 {
		return nil
	}
	return slices.Clone(s.branchIDs)
}

// SingleBranch reports the branch id when the scope pins exactly one branch.
func (s Scope) SingleBranch() (string, bool) {
	if (s.kind == ScopeBranch || s.kind == ScopeBranchSet) && len(s.branchIDs) == 1 {
		return s.branchIDs[0], true
	}
	return "", false
}

// AllowsBranch reports whether rows of branchID are visible. Company-wide
// scopes see every branch, including rows without a branch.
func (s Scope) AllowsBranch(branchID string) bool {
	switch s.kind {
	case ScopeCompany:
		return true
	case ScopeBranch, ScopeBranchSet:
		return slices.Contains(s.branchIDs, branchID)
	default:
		return false
	}
}

// Require rejects a blocked scope with an access denied error.
func (s Scope) Require() error {
	if s.IsBlocked() {
		return errors.AccessDenied("no tenant visibility for this principal")
	}
	return nil
}

// Authorize checks that the given tenant (company plus optional branch) is
// visible from this scope.
func (s Scope) Authorize(companyID, branchID string) error {
	if err := s.Require(); err != nil {
		return err
	}
	if companyID != s.companyID {
		return errors.AccessDenied("company is outside the caller's scope")
	}
	if branchID == "" {
		if s.kind != ScopeCompany {
			return errors.AccessDenied("branch-restricted principal must target one of its branches")
		}
		return nil
	}
	if !s.AllowsBranch(branchID) {
		return errors.AccessDenied("branch is outside the caller's scope")
	}
	return nil
}

func (s Scope) String() string {
	switch s.kind {
	case ScopeCompany:
		return fmt.Sprintf("company(%s)", s.companyID)
	case ScopeBranch:
		return fmt.Sprintf("branch(%s/%s)", s.companyID, s.branchIDs[0])
	case ScopeBranchSet:
		return fmt.Sprintf("branches(%s/{%s})", s.companyID, strings.Join(s.branchIDs, ","))
	default:
		return "blocked"
	}
}

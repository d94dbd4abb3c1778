package tenant

// ClaimKind is the type of an explicit tenant claim.
type ClaimKind string

const (
	ClaimCompany ClaimKind = "company"
	ClaimBranch  ClaimKind = "branch"
)

// TenantClaim is an explicit tenant binding carried by the credential, for
// example a service account issued for one company or one branch.
type TenantClaim struct {
	Kind      ClaimKind
	ID        string
	CompanyID string // parent company, required for branch claims
}

// User is an interactive user of a company.
type User struct {
	ID        string
	CompanyID string
}

// Principal is the authenticated identity of a request. Either Claim or User
// is set; neither means the request has no tenant visibility.
type Principal struct {
	Claim            *TenantClaim
	User             *User
	ServiceAccountID string
}

// Actor identifies who issued a record.
//
// It is a closed union of UserActor and ServiceAccountActor.
type Actor interface {
	ActorID() string
	isActor()
}

// UserActor is an interactive user.
type UserActor struct{ ID string }

// ServiceAccountActor is a non-interactive account (API key, integration).
type ServiceAccountActor struct{ ID string }

func (a UserActor) ActorID() string           { return a.ID }
func (a ServiceAccountActor) ActorID() string { return a.ID }
func (UserActor) isActor()                    {}
func (ServiceAccountActor) isActor()          {}

// Actor resolves the issuing identity once so callers never probe "user,
// else account" themselves.
func (p Principal) Actor() (Actor, bool) {
	if p.User != nil && p.User.ID != "" {
		return UserActor{ID: p.User.ID}, true
	}
	if p.ServiceAccountID != "" {
		return ServiceAccountActor{ID: p.ServiceAccountID}, true
	}
	return nil, false
}

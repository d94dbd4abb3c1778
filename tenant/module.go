package tenant

import "go.uber.org/fx"

// Module 租户解析模块
// 提供: *Resolver, MembershipStore
var Module = fx.Module("tenant",
	fx.Provide(
		NewGormMembershipStore,
		func(s *GormMembershipStore) MembershipStore { return s },
		NewResolver,
	),
)

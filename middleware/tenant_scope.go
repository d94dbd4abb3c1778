package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/aisgo/ais-wms-core/errors"
	"github.com/aisgo/ais-wms-core/logger"
	"github.com/aisgo/ais-wms-core/tenant"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

/* ========================================================================
 * Tenant Scope Middleware
 * ========================================================================
 * 职责: 构造认证主体，解析租户可见范围并写入请求 Context
 * 主体来源（按顺序）:
 *   1. 服务账号 API Key（X-API-Key 或 Authorization Bearer），
 *      Key 配置自带 company/branch 声明
 *   2. 网关注入的身份头 X-AIS-Auth-User: base64url(JSON Identity)
 *   3. 都没有 -> 空主体，范围为 Blocked（读取为空，写入被拒绝）
 * 说明: 身份头的签名校验由网关完成，此处只做租户解析
 * ======================================================================== */

const (
	HeaderAPIKey       = "X-API-Key"
	HeaderAuthIdentity = "X-AIS-Auth-User"
)

// ServiceAccountKey 服务账号 API Key 及其租户声明
type ServiceAccountKey struct {
	Key       string `yaml:"key" mapstructure:"key"`
	CompanyID string `yaml:"company_id" mapstructure:"company_id"`
	BranchID  string `yaml:"branch_id" mapstructure:"branch_id"`
}

// APIKeyConfig API Key 配置
type APIKeyConfig struct {
	Enabled bool                         `yaml:"enabled" mapstructure:"enabled"`
	Keys    map[string]ServiceAccountKey `yaml:"keys" mapstructure:"keys"` // account_id -> key
}

// Identity 网关注入的用户身份
type Identity struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id,omitempty"`
	Username  string `json:"username,omitempty"`
}

// TenantScope 租户范围中间件
type TenantScope struct {
	apiKeys  APIKeyConfig
	resolver *tenant.Resolver
	log      *logger.Logger
}

// NewTenantScope 创建租户范围中间件
func NewTenantScope(cfg *APIKeyConfig, resolver *tenant.Resolver, log *logger.Logger) *TenantScope {
	if cfg == nil {
		cfg = &APIKeyConfig{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &TenantScope{apiKeys: *cfg, resolver: resolver, log: log}
}

// Handler 返回 Fiber 中间件，失败交由 ErrorHandler 渲染
func (m *TenantScope) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		principal, err := m.principal(c)
		if err != nil {
			m.log.Warn("Tenant principal rejected",
				zap.Error(err),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			return err
		}

		ctx := tenant.WithPrincipal(c.Context(), principal)
		ctx, scope, err := m.resolver.ResolveContext(ctx)
		if err != nil {
			return errors.Wrap(errors.ErrCodeUnavailable, "failed to resolve tenant scope", err)
		}
		// 请求级 Logger 带上租户字段，下游组件经 WithContext 取用
		ctx = logger.ToContext(ctx, m.log.With(
			zap.Stringer("scope", scope.Kind()),
			zap.String("company_id", scope.CompanyID()),
		))
		c.SetContext(ctx)
		return c.Next()
	}
}

func (m *TenantScope) principal(c fiber.Ctx) (tenant.Principal, error) {
	if key := apiKeyFromRequest(c); key != "" && m.apiKeys.Enabled {
		accountID, account, ok := m.lookupKey(key)
		if !ok {
			return tenant.Principal{}, errors.New(errors.ErrCodeUnauthenticated, "invalid api key")
		}
		return serviceAccountPrincipal(accountID, account), nil
	}

	identity, err := DecodeIdentity(c.Get(HeaderAuthIdentity))
	if err != nil {
		return tenant.Principal{}, errors.Wrap(errors.ErrCodeUnauthenticated, "invalid identity header", err)
	}
	if identity == nil || identity.UserID == "" {
		return tenant.Principal{}, nil
	}
	return tenant.Principal{User: &tenant.User{ID: identity.UserID, CompanyID: identity.CompanyID}}, nil
}

// lookupKey 使用 constant-time 比较查找服务账号
func (m *TenantScope) lookupKey(key string) (string, ServiceAccountKey, bool) {
	for accountID, account := range m.apiKeys.Keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(account.Key)) == 1 {
			return accountID, account, true
		}
	}
	return "", ServiceAccountKey{}, false
}

func serviceAccountPrincipal(accountID string, account ServiceAccountKey) tenant.Principal {
	p := tenant.Principal{ServiceAccountID: accountID}
	switch {
	case account.BranchID != "":
		p.Claim = &tenant.TenantClaim{Kind: tenant.ClaimBranch, ID: account.BranchID, CompanyID: account.CompanyID}
	case account.CompanyID != "":
		p.Claim = &tenant.TenantClaim{Kind: tenant.ClaimCompany, ID: account.CompanyID}
	}
	return p
}

func apiKeyFromRequest(c fiber.Ctx) string {
	if key := strings.TrimSpace(c.Get(HeaderAPIKey)); key != "" {
		return key
	}
	if auth := c.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// EncodeIdentity 编码为 base64url JSON
func EncodeIdentity(identity *Identity) (string, error) {
	if identity == nil {
		return "", nil
	}
	data, err := json.Marshal(identity)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeIdentity 解码 base64url JSON，空值返回 nil
func DecodeIdentity(value string) (*Identity, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		data, err = base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, err
		}
	}
	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

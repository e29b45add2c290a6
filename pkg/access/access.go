package access

import (
	"cesworld/pkg/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("access", fx.Provide(New))

const DefaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj) && (p.act == "*" || r.act == p.act)
`

// DefaultPolicy grants the admin role every admin route.
const DefaultPolicy = `p, admin, /v1/admin/*, *`

// Enforcer decides whether a role may perform act on obj.
type Enforcer interface {
	Allow(role, obj, act string) (bool, error)
}

type casbinEnforcer struct {
	e *casbin.Enforcer
}

func New(cfg *config.Config) (Enforcer, error) {
	modelText := cfg.AccessControl.Model
	if modelText == "" {
		modelText = DefaultModel
	}
	policy := cfg.AccessControl.Policy
	if policy == "" {
		policy = DefaultPolicy
	}
	return NewFromText(modelText, policy)
}

func NewFromText(modelText, policy string) (Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		zap.L().Error("failed to parse access model", zap.Error(err))
		return nil, err
	}

	e, err := casbin.NewEnforcer(m, stringadapter.NewAdapter(policy))
	if err != nil {
		zap.L().Error("failed to build access enforcer", zap.Error(err))
		return nil, err
	}

	return &casbinEnforcer{e: e}, nil
}

func (c *casbinEnforcer) Allow(role, obj, act string) (bool, error) {
	if role == "" {
		return false, nil
	}
	return c.e.Enforce(role, obj, act)
}

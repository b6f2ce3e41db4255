// Package auth authenticates bearer tokens and authorizes catalog access.
package auth

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/rs/zerolog"

	"gamecatalog/backend/internal/models"
)

//go:embed policy/model.conf
var embeddedModel string

//go:embed policy/policy.csv
var embeddedPolicy string

// Action is an operation on a resource kind.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionRun    Action = "run"
)

// Kind is a protected resource kind.
type Kind string

const (
	KindVideoGame Kind = "video_game"
	KindEditor    Kind = "editor"
	KindCategory  Kind = "category"
	KindUser      Kind = "user"
	KindDigest    Kind = "digest"
)

// Authorizer decides access from a user's roles with a casbin RBAC policy.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
	log      zerolog.Logger
}

// NewAuthorizer loads the embedded model and policy.
func NewAuthorizer(logger zerolog.Logger) (*Authorizer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if err := loadPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}
	return &Authorizer{
		enforcer: enforcer,
		log:      logger.With().Str("component", "authorizer").Logger(),
	}, nil
}

func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// CanAccess reports whether any of the user's effective roles allows action
// on kind. A nil user is denied.
func (a *Authorizer) CanAccess(user *models.User, action Action, kind Kind) bool {
	if user == nil {
		return false
	}
	for _, role := range user.EffectiveRoles() {
		allowed, err := a.enforcer.Enforce(role, string(kind), string(action))
		if err != nil {
			a.log.Error().Err(err).Str("role", role).Msg("authorization check failed")
			return false
		}
		if allowed {
			return true
		}
	}
	return false
}

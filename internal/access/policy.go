// AngelaMos | 2026
// policy.go

package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/outbox"
	"github.com/carterperez-dev/gatepass/internal/principal"
)

type Outcome string

const (
	Changed   Outcome = "changed"
	Unchanged Outcome = "unchanged"
)

type ChangeResult struct {
	Outcome      Outcome                     `json:"outcome"`
	Role         principal.Role              `json:"role"`
	Grant        bool                        `json:"grant"`
	Target       principal.PrincipalResponse `json:"target"`
	Notification *outbox.Delivery            `json:"notification,omitempty"`
}

type Policy struct {
	provider   MembershipProvider
	principals *principal.Service
	timeout    time.Duration
	botName    string
}

func NewPolicy(
	provider MembershipProvider,
	principals *principal.Service,
	timeout time.Duration,
	botName string,
) *Policy {
	return &Policy{
		provider:   provider,
		principals: principals,
		timeout:    timeout,
		botName:    botName,
	}
}

// CanIssue asks the membership provider at call time. Anything other than
// a positive answer within the timeout is a soft deny.
func (p *Policy) CanIssue(ctx context.Context, principalID string) bool {
	checkCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	status, err := p.provider.IsMember(checkCtx, principalID)
	if err != nil {
		slog.WarnContext(ctx, "membership provider unavailable",
			"principal_id", principalID,
			"error", err,
		)
		return false
	}

	if status == Unknown {
		slog.InfoContext(ctx, "membership status unknown",
			"principal_id", principalID,
		)
	}

	return status == Member
}

func (p *Policy) RoleOf(ctx context.Context, principalID string) (principal.Roles, error) {
	pr, err := p.principals.Get(ctx, principalID)
	if err != nil {
		return principal.Roles{}, err
	}
	return pr.Roles(), nil
}

// Require returns ErrUnauthorized unless principalID exists and holds role.
func (p *Policy) Require(ctx context.Context, principalID string, role principal.Role) error {
	roles, err := p.RoleOf(ctx, principalID)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("require %s: %w", role, core.ErrUnauthorized)
	}
	if err != nil {
		return err
	}

	if !roles.Has(role) {
		return fmt.Errorf("require %s: %w", role, core.ErrUnauthorized)
	}

	return nil
}

func (p *Policy) GrantAdmin(ctx context.Context, actorID, targetTag string) (*ChangeResult, error) {
	return p.ChangeRole(ctx, actorID, targetTag, principal.RoleAdmin, true)
}

func (p *Policy) RevokeAdmin(ctx context.Context, actorID, targetTag string) (*ChangeResult, error) {
	return p.ChangeRole(ctx, actorID, targetTag, principal.RoleAdmin, false)
}

func (p *Policy) GrantPromoter(ctx context.Context, actorID, targetTag string) (*ChangeResult, error) {
	return p.ChangeRole(ctx, actorID, targetTag, principal.RolePromoter, true)
}

func (p *Policy) RevokePromoter(ctx context.Context, actorID, targetTag string) (*ChangeResult, error) {
	return p.ChangeRole(ctx, actorID, targetTag, principal.RolePromoter, false)
}

// ChangeRole grants or revokes role on the principal tagged targetTag.
// Only an existing admin may call it. The target is left untouched on
// any error.
func (p *Policy) ChangeRole(
	ctx context.Context,
	actorID, targetTag string,
	role principal.Role,
	grant bool,
) (*ChangeResult, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("change role %q: %w", role, core.ErrInvalidInput)
	}

	if err := p.Require(ctx, actorID, principal.RoleAdmin); err != nil {
		return nil, err
	}

	target, err := p.principals.FindByTag(ctx, targetTag)
	if err != nil {
		return nil, err
	}

	changed, err := p.principals.SetRole(ctx, target.ID, role, grant)
	if err != nil {
		return nil, err
	}

	result := &ChangeResult{
		Outcome: Unchanged,
		Role:    role,
		Grant:   grant,
	}

	if changed {
		result.Outcome = Changed
		switch role {
		case principal.RoleAdmin:
			target.IsAdmin = grant
		case principal.RolePromoter:
			target.IsPromoter = grant
		}
		note := p.notification(target, role, grant)
		result.Notification = &note

		slog.InfoContext(ctx, "role changed",
			"actor_id", actorID,
			"target_id", target.ID,
			"role", role,
			"grant", grant,
		)
	}

	result.Target = principal.ToPrincipalResponse(target)
	return result, nil
}

func (p *Policy) notification(
	target *principal.Principal,
	role principal.Role,
	grant bool,
) outbox.Delivery {
	switch {
	case role == principal.RoleAdmin && grant:
		return outbox.Text(target.ID, outbox.KeyAdminGranted, nil)
	case role == principal.RoleAdmin:
		return outbox.Text(target.ID, outbox.KeyAdminRevoked, nil)
	case grant:
		params := map[string]string{"start_param": target.Tag()}
		if p.botName != "" && target.Tag() != "" {
			params["invite_link"] = "https://t.me/" + p.botName + "?start=" + target.Tag()
		}
		return outbox.Text(target.ID, outbox.KeyPromoterGranted, params)
	default:
		return outbox.Text(target.ID, outbox.KeyPromoterRevoked, nil)
	}
}

// AngelaMos | 2026
// service.go

package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/gatepass/internal/access"
	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/credential"
	"github.com/carterperez-dev/gatepass/internal/ledger"
	"github.com/carterperez-dev/gatepass/internal/metrics"
	"github.com/carterperez-dev/gatepass/internal/outbox"
	"github.com/carterperez-dev/gatepass/internal/principal"
	"github.com/carterperez-dev/gatepass/internal/ticket"
)

type Options struct {
	IssueClass ticket.Class
	Channel    string
}

// Service is the boundary the chat layer talks to. It returns outbound
// messages as values and never calls the chat transport itself.
type Service struct {
	principals *principal.Service
	codec      *ticket.Codec
	channel    *credential.Channel
	ledger     *ledger.Service
	policy     *access.Policy
	publisher  outbox.Publisher
	metrics    *metrics.Metrics
	opts       Options
}

func NewService(
	principals *principal.Service,
	codec *ticket.Codec,
	channel *credential.Channel,
	admissions *ledger.Service,
	policy *access.Policy,
	publisher outbox.Publisher,
	m *metrics.Metrics,
	opts Options,
) (*Service, error) {
	if !codec.Has(opts.IssueClass) {
		return nil, fmt.Errorf(
			"gate: issue class %q: %w",
			opts.IssueClass,
			core.ErrUnknownClass,
		)
	}
	if publisher == nil {
		publisher = outbox.NopPublisher{}
	}

	return &Service{
		principals: principals,
		codec:      codec,
		channel:    channel,
		ledger:     admissions,
		policy:     policy,
		publisher:  publisher,
		metrics:    m,
		opts:       opts,
	}, nil
}

// Start handles first contact from a chat user.
func (s *Service) Start(
	ctx context.Context,
	principalID, displayTag, referrer string,
) (*StartResult, error) {
	ctx, span := core.StartSpan(ctx, "gate.Start",
		attribute.String("principal_id", principalID))
	defer span.End()

	p, created, err := s.principals.Start(ctx, principalID, displayTag, referrer)
	if err != nil {
		core.SetSpanError(ctx, err)
		return nil, err
	}

	var delivery outbox.Delivery
	switch {
	case created || p.Phone == nil:
		delivery = outbox.Text(p.ID, outbox.KeyContactPrompt, nil)
	case p.IsAdmin || p.IsPromoter:
		delivery = outbox.Text(p.ID, outbox.KeyWelcomeBack, map[string]string{
			"admin":    fmt.Sprint(p.IsAdmin),
			"promoter": fmt.Sprint(p.IsPromoter),
		})
	case p.IsRegistered:
		delivery = outbox.Text(p.ID, outbox.KeyAlreadyRegistered, nil)
	default:
		delivery = s.subscribePrompt(p.ID)
	}

	deliveries := []outbox.Delivery{delivery}
	outbox.PublishAsync(s.publisher, deliveries...)

	return &StartResult{
		Principal:  principal.ToPrincipalResponse(p),
		Created:    created,
		Deliveries: deliveries,
	}, nil
}

func (s *Service) RegisterContact(
	ctx context.Context,
	principalID, phone, displayTag, referrer string,
) (*StartResult, error) {
	ctx, span := core.StartSpan(ctx, "gate.RegisterContact",
		attribute.String("principal_id", principalID))
	defer span.End()

	p, err := s.principals.RegisterContact(ctx, principalID, phone, displayTag, referrer)
	if err != nil {
		core.SetSpanError(ctx, err)
		return nil, err
	}

	deliveries := []outbox.Delivery{
		outbox.Text(p.ID, outbox.KeyContactSaved, nil),
		s.subscribePrompt(p.ID),
	}
	outbox.PublishAsync(s.publisher, deliveries...)

	return &StartResult{
		Principal:  principal.ToPrincipalResponse(p),
		Deliveries: deliveries,
	}, nil
}

// RequestIssuance mints the credential once the membership check passes.
// A failed check is a normal result, not an error.
func (s *Service) RequestIssuance(
	ctx context.Context,
	principalID string,
) (*IssuanceResult, error) {
	ctx, span := core.StartSpan(ctx, "gate.RequestIssuance",
		attribute.String("principal_id", principalID))
	defer span.End()

	p, err := s.principals.Get(ctx, principalID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("request issuance: %w", core.ErrUnknownPrincipal)
	}
	if err != nil {
		core.SetSpanError(ctx, err)
		return nil, err
	}

	if !s.policy.CanIssue(ctx, principalID) {
		s.metrics.IncrementIssuance(string(StatusPolicyDenied))
		deliveries := []outbox.Delivery{s.subscribePrompt(principalID)}
		outbox.PublishAsync(s.publisher, deliveries...)

		return &IssuanceResult{
			Status:     StatusPolicyDenied,
			Deliveries: deliveries,
		}, nil
	}

	token, err := s.codec.Mint(principalID, s.opts.IssueClass)
	if err != nil {
		core.SetSpanError(ctx, err)
		return nil, err
	}

	png, err := s.channel.Encode(token, p.Tag())
	if err != nil {
		core.SetSpanError(ctx, err)
		return nil, err
	}

	first, err := s.principals.MarkRegistered(ctx, principalID)
	if err != nil {
		core.SetSpanError(ctx, err)
		return nil, err
	}

	if first {
		slog.InfoContext(ctx, "credential issued",
			"principal_id", principalID,
			"ticket_class", s.opts.IssueClass,
		)
	}
	s.metrics.IncrementIssuance(string(StatusIssued))

	deliveries := []outbox.Delivery{
		outbox.Photo(principalID, outbox.KeyCredentialIssued, png, map[string]string{
			"ticket_class": string(s.opts.IssueClass),
		}),
	}
	outbox.PublishAsync(s.publisher, deliveries...)

	return &IssuanceResult{
		Status:     StatusIssued,
		Token:      token,
		Class:      s.opts.IssueClass,
		FirstIssue: first,
		Deliveries: deliveries,
	}, nil
}

// SubmitScan decodes a photographed credential and tries to admit it.
func (s *Service) SubmitScan(
	ctx context.Context,
	staffID string,
	image []byte,
) (*ScanResult, error) {
	start := time.Now()
	ctx, span := core.StartSpan(ctx, "gate.SubmitScan",
		attribute.String("staff_id", staffID),
		attribute.Int("image_bytes", len(image)))
	defer span.End()

	if err := s.policy.Require(ctx, staffID, principal.RoleAdmin); err != nil {
		return nil, err
	}

	token, err := s.channel.Decode(image)
	if err != nil {
		verdict := VerdictInvalid
		if errors.Is(err, core.ErrNoCode) {
			verdict = VerdictRetake
		}
		s.logScan(ctx, staffID, verdict, err)
		s.metrics.ObserveScan(string(verdict), start)
		return &ScanResult{Verdict: verdict}, nil
	}

	return s.admit(ctx, staffID, token, start)
}

// SubmitToken is SubmitScan for a token the chat layer already decoded.
func (s *Service) SubmitToken(
	ctx context.Context,
	staffID, token string,
) (*ScanResult, error) {
	start := time.Now()
	ctx, span := core.StartSpan(ctx, "gate.SubmitToken",
		attribute.String("staff_id", staffID))
	defer span.End()

	if err := s.policy.Require(ctx, staffID, principal.RoleAdmin); err != nil {
		return nil, err
	}

	return s.admit(ctx, staffID, token, start)
}

func (s *Service) admit(
	ctx context.Context,
	staffID, token string,
	start time.Time,
) (*ScanResult, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		s.logScan(ctx, staffID, VerdictInvalid, err)
		s.metrics.ObserveScan(string(VerdictInvalid), start)
		return &ScanResult{Verdict: VerdictInvalid}, nil
	}

	red, err := s.ledger.TryAdmit(ctx, claims.PrincipalID, claims.Class, staffID)
	switch {
	case err == nil:
		s.logScan(ctx, staffID, VerdictAdmitted, nil, "principal_id", claims.PrincipalID)
		s.metrics.ObserveScan(string(VerdictAdmitted), start)
		return &ScanResult{
			Verdict:     VerdictAdmitted,
			PrincipalID: claims.PrincipalID,
			Class:       claims.Class,
			RedeemedAt:  &red.RedeemedAt,
		}, nil

	case errors.Is(err, core.ErrAlreadyRedeemed):
		result := &ScanResult{
			Verdict:     VerdictAlreadyRedeemed,
			PrincipalID: claims.PrincipalID,
			Class:       claims.Class,
		}
		if prior, getErr := s.ledger.Get(ctx, claims.PrincipalID); getErr == nil {
			result.Class = prior.Class
			result.RedeemedAt = &prior.RedeemedAt
		}
		s.logScan(ctx, staffID, VerdictAlreadyRedeemed, nil, "principal_id", claims.PrincipalID)
		s.metrics.ObserveScan(string(VerdictAlreadyRedeemed), start)
		return result, nil

	case errors.Is(err, core.ErrUnknownPrincipal):
		s.logScan(ctx, staffID, VerdictInvalid, err)
		s.metrics.ObserveScan(string(VerdictInvalid), start)
		return &ScanResult{Verdict: VerdictInvalid}, nil

	default:
		core.SetSpanError(ctx, err)
		return nil, err
	}
}

func (s *Service) GrantRole(
	ctx context.Context,
	actorID, targetTag string,
	role principal.Role,
) (*access.ChangeResult, error) {
	return s.changeRole(ctx, actorID, targetTag, role, true)
}

func (s *Service) RevokeRole(
	ctx context.Context,
	actorID, targetTag string,
	role principal.Role,
) (*access.ChangeResult, error) {
	return s.changeRole(ctx, actorID, targetTag, role, false)
}

func (s *Service) changeRole(
	ctx context.Context,
	actorID, targetTag string,
	role principal.Role,
	grant bool,
) (*access.ChangeResult, error) {
	ctx, span := core.StartSpan(ctx, "gate.ChangeRole",
		attribute.String("actor_id", actorID),
		attribute.String("role", string(role)),
		attribute.Bool("grant", grant))
	defer span.End()

	result, err := s.policy.ChangeRole(ctx, actorID, targetTag, role, grant)
	if err != nil {
		outcome := "error"
		if errors.Is(err, core.ErrUnauthorized) {
			outcome = "unauthorized"
		}
		s.metrics.IncrementRoleChange(string(role), grant, outcome)
		return nil, err
	}

	s.metrics.IncrementRoleChange(string(role), grant, string(result.Outcome))
	if result.Notification != nil {
		outbox.PublishAsync(s.publisher, *result.Notification)
	}

	return result, nil
}

// QueryStats answers one statistic. Registrations, redemptions and
// attendance need an admin; invited needs a promoter and counts that
// promoter's own referrals.
func (s *Service) QueryStats(
	ctx context.Context,
	actorID string,
	kind StatsKind,
) (*Stats, error) {
	ctx, span := core.StartSpan(ctx, "gate.QueryStats",
		attribute.String("actor_id", actorID),
		attribute.String("kind", string(kind)))
	defer span.End()

	if !kind.Valid() {
		return nil, fmt.Errorf("query stats %q: %w", kind, core.ErrInvalidInput)
	}

	required := principal.RoleAdmin
	if kind == StatsInvited {
		required = principal.RolePromoter
	}
	if err := s.policy.Require(ctx, actorID, required); err != nil {
		return nil, err
	}

	stats := &Stats{Kind: kind}

	switch kind {
	case StatsRegistrations:
		n, err := s.principals.CountRegistrations(ctx)
		if err != nil {
			return nil, err
		}
		stats.Registrations = &n

	case StatsRedemptions:
		totals, err := s.Totals(ctx)
		if err != nil {
			return nil, err
		}
		stats.Redemptions = &RedemptionStats{
			Total:   totals.Redemptions,
			ByClass: totals.ByClass,
		}

	case StatsInvited:
		counts, err := s.principals.CountReferrals(ctx, actorID)
		if err != nil {
			return nil, err
		}
		stats.Invited = &counts

	case StatsAttendanceByPromoter:
		rows, err := s.ledger.AttendanceByPromoter(ctx)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []ledger.PromoterAttendance{}
		}
		stats.Attendance = rows
	}

	return stats, nil
}

// Totals gathers the operator overview concurrently.
func (s *Service) Totals(ctx context.Context) (*Totals, error) {
	var totals Totals

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.principals.CountRegistrations(gctx)
		totals.Registrations = n
		return err
	})
	g.Go(func() error {
		n, err := s.ledger.Count(gctx, nil)
		totals.Redemptions = n
		return err
	})
	g.Go(func() error {
		byClass, err := s.ledger.CountByClass(gctx)
		totals.ByClass = byClass
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("gather totals: %w", err)
	}

	for _, class := range s.codec.Classes() {
		if _, ok := totals.ByClass[class]; !ok {
			totals.ByClass[class] = 0
		}
	}

	return &totals, nil
}

func (s *Service) subscribePrompt(principalID string) outbox.Delivery {
	return outbox.Text(principalID, outbox.KeySubscribePrompt, map[string]string{
		"channel": s.opts.Channel,
	})
}

func (s *Service) logScan(
	ctx context.Context,
	staffID string,
	verdict Verdict,
	err error,
	attrs ...any,
) {
	core.AddSpanEvent(ctx, "scan.verdict", attribute.String("verdict", string(verdict)))

	attrs = append(attrs, "staff_id", staffID, "verdict", verdict)
	if err != nil {
		attrs = append(attrs, "reason", err.Error())
	}
	slog.InfoContext(ctx, "scan", attrs...)
}

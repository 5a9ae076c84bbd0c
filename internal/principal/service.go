// AngelaMos | 2026
// service.go

package principal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/gatepass/internal/core"
)

type Service struct {
	db   *sqlx.DB
	repo Repository
}

func NewService(db *sqlx.DB) *Service {
	return &Service{db: db, repo: NewRepository(db)}
}

func (s *Service) Get(ctx context.Context, id string) (*Principal, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// FindByTag resolves a display tag case-insensitively, ignoring a leading
// "@".
func (s *Service) FindByTag(ctx context.Context, tag string) (*Principal, error) {
	tag = NormalizeTag(tag)
	if tag == "" {
		return nil, fmt.Errorf("find by tag: empty tag: %w", core.ErrNotFound)
	}
	return s.repo.GetByTag(ctx, tag)
}

// Start records first contact. An existing principal keeps its data apart
// from a first referral and a changed display tag.
func (s *Service) Start(
	ctx context.Context,
	id, displayTag, referrerTag string,
) (*Principal, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, fmt.Errorf("start: empty principal id: %w", core.ErrInvalidInput)
	}

	var (
		p       *Principal
		created bool
	)

	err := core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)

		var err error
		p, created, err = ensure(ctx, repo, id, NormalizeTag(displayTag))
		if err != nil {
			return err
		}

		return attachReferrer(ctx, repo, p, referrerTag)
	})
	if err != nil {
		return nil, false, err
	}

	return p, created, nil
}

// RegisterContact stores the shared phone number, creating the principal
// when it has not been seen before.
func (s *Service) RegisterContact(
	ctx context.Context,
	id, phone, displayTag, referrerTag string,
) (*Principal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("register contact: empty principal id: %w", core.ErrInvalidInput)
	}

	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("register contact: empty phone: %w", core.ErrInvalidInput)
	}

	var p *Principal
	err := core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)

		var err error
		p, _, err = ensure(ctx, repo, id, NormalizeTag(displayTag))
		if err != nil {
			return err
		}

		var tag *string
		if normalized := NormalizeTag(displayTag); normalized != "" {
			tag = &normalized
		}
		if err := repo.UpdateContact(ctx, id, &phone, tag); err != nil {
			return err
		}
		p.Phone = &phone
		if tag != nil {
			p.DisplayTag = tag
		}

		return attachReferrer(ctx, repo, p, referrerTag)
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// MarkRegistered flags the principal as issued and writes the registration
// event once. It reports whether this call was the first issuance.
func (s *Service) MarkRegistered(ctx context.Context, id string) (bool, error) {
	var first bool

	err := core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)

		p, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		first, err = repo.MarkRegistered(ctx, id, p.Phone)
		return err
	})
	if err != nil {
		return false, err
	}

	return first, nil
}

func (s *Service) SetRole(
	ctx context.Context,
	id string,
	role Role,
	value bool,
) (bool, error) {
	return s.repo.SetRole(ctx, id, role, value)
}

func (s *Service) CountRegistrations(ctx context.Context) (int, error) {
	return s.repo.CountRegistrations(ctx)
}

func (s *Service) CountReferrals(
	ctx context.Context,
	referrerID string,
) (ReferralCounts, error) {
	return s.repo.CountReferrals(ctx, referrerID)
}

func ensure(
	ctx context.Context,
	repo Repository,
	id, displayTag string,
) (*Principal, bool, error) {
	p, err := repo.GetByID(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		fresh := &Principal{ID: id}
		if displayTag != "" {
			fresh.DisplayTag = &displayTag
		}

		created, err := repo.CreateIfAbsent(ctx, fresh)
		if err != nil {
			return nil, false, err
		}
		if created {
			return fresh, true, nil
		}

		// lost the insert to a concurrent first contact
		p, err = repo.GetByID(ctx, id)
	}
	if err != nil {
		return nil, false, err
	}

	if displayTag != "" && displayTag != p.Tag() {
		if err := repo.UpdateDisplayTag(ctx, id, displayTag); err != nil {
			return nil, false, err
		}
		p.DisplayTag = &displayTag
	}

	return p, false, nil
}

// attachReferrer sets the referral once. Unknown tags and self-referrals
// are ignored.
func attachReferrer(
	ctx context.Context,
	repo Repository,
	p *Principal,
	referrerTag string,
) error {
	referrerTag = NormalizeTag(referrerTag)
	if referrerTag == "" || p.ReferredBy != nil {
		return nil
	}

	referrer, err := repo.GetByTag(ctx, referrerTag)
	if errors.Is(err, core.ErrNotFound) {
		slog.Debug("referrer tag not found", "principal_id", p.ID, "tag", referrerTag)
		return nil
	}
	if err != nil {
		return err
	}
	if referrer.ID == p.ID {
		return nil
	}

	set, err := repo.SetReferrer(ctx, p.ID, referrer.ID)
	if err != nil {
		return err
	}
	if set {
		p.ReferredBy = &referrer.ID
	}

	return nil
}

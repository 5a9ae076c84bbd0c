// AngelaMos | 2026
// service.go

package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/ticket"
)

// Service is the admission log. Each principal is admitted at most once,
// whatever the class, staff member or number of concurrent scans.
type Service struct {
	db    *sqlx.DB
	repo  Repository
	locks *core.KeyedMutex
	now   func() time.Time
}

func NewService(db *sqlx.DB) *Service {
	return &Service{
		db:    db,
		repo:  NewRepository(db),
		locks: core.NewKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// TryAdmit records the redemption for principalID. It returns
// ErrUnknownPrincipal when the principal does not exist and
// ErrAlreadyRedeemed when a redemption is already on file.
func (s *Service) TryAdmit(
	ctx context.Context,
	principalID string,
	class ticket.Class,
	staffID string,
) (*Redemption, error) {
	if strings.TrimSpace(principalID) == "" {
		return nil, fmt.Errorf("try admit: %w", core.ErrUnknownPrincipal)
	}

	unlock := s.locks.Lock(principalID)
	defer unlock()

	red := &Redemption{
		ID:          uuid.New().String(),
		PrincipalID: principalID,
		Class:       class,
		StaffID:     staffID,
		RedeemedAt:  s.now(),
	}

	err := core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)

		phone, err := repo.PrincipalPhone(ctx, principalID)
		if err != nil {
			return err
		}
		red.Phone = phone

		inserted, err := repo.Insert(ctx, red)
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("try admit %s: %w", principalID, core.ErrAlreadyRedeemed)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return red, nil
}

func (s *Service) Get(ctx context.Context, principalID string) (*Redemption, error) {
	return s.repo.Get(ctx, principalID)
}

// Count returns the total when class is nil.
func (s *Service) Count(ctx context.Context, class *ticket.Class) (int, error) {
	if class == nil {
		return s.repo.Count(ctx)
	}
	return s.repo.CountClass(ctx, *class)
}

func (s *Service) CountByClass(ctx context.Context) (map[ticket.Class]int, error) {
	rows, err := s.repo.CountByClass(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[ticket.Class]int, len(rows))
	for _, row := range rows {
		out[row.Class] = row.Count
	}
	return out, nil
}

// AttendanceByPromoter groups admitted guests by the promoter that referred
// them. Staff admissions are left out.
func (s *Service) AttendanceByPromoter(ctx context.Context) ([]PromoterAttendance, error) {
	return s.repo.AttendanceByPromoter(ctx)
}

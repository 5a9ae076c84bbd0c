// AngelaMos | 2026
// repository.go

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/ticket"
)

type Repository interface {
	PrincipalPhone(ctx context.Context, principalID string) (*string, error)
	Insert(ctx context.Context, r *Redemption) (bool, error)
	Get(ctx context.Context, principalID string) (*Redemption, error)
	Count(ctx context.Context) (int, error)
	CountClass(ctx context.Context, class ticket.Class) (int, error)
	CountByClass(ctx context.Context) ([]ClassCount, error)
	AttendanceByPromoter(ctx context.Context) ([]PromoterAttendance, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

// PrincipalPhone returns ErrUnknownPrincipal when no principal row exists.
func (r *repository) PrincipalPhone(ctx context.Context, principalID string) (*string, error) {
	query := `SELECT phone FROM principals WHERE principal_id = $1`

	var phone sql.NullString
	err := r.db.GetContext(ctx, &phone, query, principalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup principal %s: %w", principalID, core.ErrUnknownPrincipal)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	if !phone.Valid {
		return nil, nil
	}
	return &phone.String, nil
}

// Insert reports false when the principal already has a redemption. The
// unique index on principal_id makes this the admission decision.
func (r *repository) Insert(ctx context.Context, red *Redemption) (bool, error) {
	query := `
		INSERT INTO redemptions (id, principal_id, ticket_class, phone, staff_id, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (principal_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		red.ID,
		red.PrincipalID,
		red.Class,
		red.Phone,
		red.StaffID,
		red.RedeemedAt,
	)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert redemption: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert redemption: rows affected: %w", err)
	}

	return rows == 1, nil
}

func (r *repository) Get(ctx context.Context, principalID string) (*Redemption, error) {
	query := `
		SELECT id, principal_id, ticket_class, phone, staff_id, redeemed_at
		FROM redemptions
		WHERE principal_id = $1`

	var red Redemption
	err := r.db.GetContext(ctx, &red, query, principalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get redemption: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}

	return &red, nil
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM redemptions`); err != nil {
		return 0, fmt.Errorf("count redemptions: %w", err)
	}
	return n, nil
}

func (r *repository) CountClass(ctx context.Context, class ticket.Class) (int, error) {
	query := `SELECT COUNT(*) FROM redemptions WHERE ticket_class = $1`

	var n int
	if err := r.db.GetContext(ctx, &n, query, class); err != nil {
		return 0, fmt.Errorf("count redemptions of %s: %w", class, err)
	}
	return n, nil
}

func (r *repository) CountByClass(ctx context.Context) ([]ClassCount, error) {
	query := `
		SELECT ticket_class, COUNT(*) AS total
		FROM redemptions
		GROUP BY ticket_class
		ORDER BY ticket_class`

	var counts []ClassCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count redemptions by class: %w", err)
	}
	return counts, nil
}

func (r *repository) AttendanceByPromoter(ctx context.Context) ([]PromoterAttendance, error) {
	query := `
		SELECT COALESCE(p.referred_by, '') AS promoter_id,
		       COALESCE(ref.display_tag, '') AS promoter_tag,
		       r.ticket_class,
		       COUNT(*) AS total
		FROM redemptions r
		JOIN principals p ON p.principal_id = r.principal_id
		LEFT JOIN principals ref ON ref.principal_id = p.referred_by
		WHERE NOT p.is_admin
		GROUP BY COALESCE(p.referred_by, ''), COALESCE(ref.display_tag, ''), r.ticket_class
		ORDER BY total DESC, promoter_tag, r.ticket_class`

	var rows []PromoterAttendance
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("attendance by promoter: %w", err)
	}
	return rows, nil
}

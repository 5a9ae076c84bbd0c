// AngelaMos | 2026
// repository.go

package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/gatepass/internal/core"
)

type Repository interface {
	Create(ctx context.Context, p *Principal) error
	CreateIfAbsent(ctx context.Context, p *Principal) (bool, error)
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByTag(ctx context.Context, tag string) (*Principal, error)
	Exists(ctx context.Context, id string) (bool, error)
	UpdateContact(ctx context.Context, id string, phone, displayTag *string) error
	UpdateDisplayTag(ctx context.Context, id, displayTag string) error
	SetReferrer(ctx context.Context, id, referrerID string) (bool, error)
	SetRole(ctx context.Context, id string, role Role, value bool) (bool, error)
	MarkRegistered(ctx context.Context, id string, phone *string) (bool, error)
	CountRegistrations(ctx context.Context) (int, error)
	CountReferrals(ctx context.Context, referrerID string) (ReferralCounts, error)
}

// Placeholders must first appear in ascending order; the sqlite driver
// binds "$N" by order of appearance.
type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const principalColumns = `principal_id, phone, display_tag, is_admin, is_promoter,
		       referred_by, is_registered, created_at, updated_at`

func (r *repository) Create(ctx context.Context, p *Principal) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO principals (principal_id, phone, display_tag, is_admin,
		                        is_promoter, referred_by, is_registered,
		                        created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Phone,
		p.DisplayTag,
		p.IsAdmin,
		p.IsPromoter,
		p.ReferredBy,
		p.IsRegistered,
		now,
	)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("create principal: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create principal: %w", err)
	}

	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// CreateIfAbsent inserts p unless the id is already taken and reports
// whether the row was written. A concurrent insert of the same id waits on
// the unique index instead of failing.
func (r *repository) CreateIfAbsent(ctx context.Context, p *Principal) (bool, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO principals (principal_id, phone, display_tag, is_admin,
		                        is_promoter, referred_by, is_registered,
		                        created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (principal_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Phone,
		p.DisplayTag,
		p.IsAdmin,
		p.IsPromoter,
		p.ReferredBy,
		p.IsRegistered,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("create principal: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create principal: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	p.CreatedAt = now
	p.UpdatedAt = now
	return true, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Principal, error) {
	query := `
		SELECT ` + principalColumns + `
		FROM principals
		WHERE principal_id = $1`

	var p Principal
	err := r.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get principal: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get principal: %w", err)
	}

	return &p, nil
}

func (r *repository) GetByTag(ctx context.Context, tag string) (*Principal, error) {
	query := `
		SELECT ` + principalColumns + `
		FROM principals
		WHERE lower(display_tag) = lower($1)
		ORDER BY created_at
		LIMIT 1`

	var p Principal
	err := r.db.GetContext(ctx, &p, query, tag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get principal by tag: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get principal by tag: %w", err)
	}

	return &p, nil
}

func (r *repository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT COUNT(*) FROM principals WHERE principal_id = $1`

	var n int
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		return false, fmt.Errorf("check principal exists: %w", err)
	}

	return n > 0, nil
}

func (r *repository) UpdateContact(
	ctx context.Context,
	id string,
	phone, displayTag *string,
) error {
	query := `
		UPDATE principals
		SET phone = $1,
		    display_tag = COALESCE($2, display_tag),
		    updated_at = $3
		WHERE principal_id = $4`

	result, err := r.db.ExecContext(ctx, query, phone, displayTag, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}

	return requireRow(result, "update contact")
}

func (r *repository) UpdateDisplayTag(ctx context.Context, id, displayTag string) error {
	query := `
		UPDATE principals
		SET display_tag = $1, updated_at = $2
		WHERE principal_id = $3`

	result, err := r.db.ExecContext(ctx, query, displayTag, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update display tag: %w", err)
	}

	return requireRow(result, "update display tag")
}

// SetReferrer records the first referral only.
func (r *repository) SetReferrer(ctx context.Context, id, referrerID string) (bool, error) {
	query := `
		UPDATE principals
		SET referred_by = $1, updated_at = $2
		WHERE principal_id = $3 AND referred_by IS NULL`

	result, err := r.db.ExecContext(ctx, query, referrerID, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("set referrer: %w", err)
	}

	return affected(result, "set referrer")
}

// SetRole reports false when the flag already had the requested value.
func (r *repository) SetRole(
	ctx context.Context,
	id string,
	role Role,
	value bool,
) (bool, error) {
	var column string
	switch role {
	case RoleAdmin:
		column = "is_admin"
	case RolePromoter:
		column = "is_promoter"
	default:
		return false, fmt.Errorf("set role %q: %w", role, core.ErrInvalidInput)
	}

	query := `
		UPDATE principals
		SET ` + column + ` = $1, updated_at = $2
		WHERE principal_id = $3 AND ` + column + ` <> $1`

	result, err := r.db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("set role %s: %w", role, err)
	}

	return affected(result, "set role")
}

// MarkRegistered flags the principal and writes its registration event.
// It reports whether this call wrote the event. Run it inside a
// transaction.
func (r *repository) MarkRegistered(
	ctx context.Context,
	id string,
	phone *string,
) (bool, error) {
	now := time.Now().UTC()

	update := `
		UPDATE principals
		SET is_registered = TRUE, updated_at = $1
		WHERE principal_id = $2 AND is_registered = FALSE`

	if _, err := r.db.ExecContext(ctx, update, now, id); err != nil {
		return false, fmt.Errorf("mark registered: %w", err)
	}

	insert := `
		INSERT INTO registration_events (id, principal_id, phone, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (principal_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, insert, uuid.New().String(), id, phone, now)
	if err != nil {
		return false, fmt.Errorf("insert registration event: %w", err)
	}

	return affected(result, "insert registration event")
}

func (r *repository) CountRegistrations(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM registration_events`); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

func (r *repository) CountReferrals(
	ctx context.Context,
	referrerID string,
) (ReferralCounts, error) {
	query := `
		SELECT COUNT(*) AS invited,
		       COALESCE(SUM(CASE WHEN is_registered THEN 1 ELSE 0 END), 0) AS registered
		FROM principals
		WHERE referred_by = $1`

	var counts ReferralCounts
	if err := r.db.GetContext(ctx, &counts, query, referrerID); err != nil {
		return ReferralCounts{}, fmt.Errorf("count referrals: %w", err)
	}

	return counts, nil
}

func requireRow(result sql.Result, op string) error {
	ok, err := affected(result, op)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return nil
}

func affected(result sql.Result, op string) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return rows > 0, nil
}

// AngelaMos | 2026
// entity.go

package principal

import (
	"strings"
	"time"
)

type Principal struct {
	ID           string    `db:"principal_id"`
	Phone        *string   `db:"phone"`
	DisplayTag   *string   `db:"display_tag"`
	IsAdmin      bool      `db:"is_admin"`
	IsPromoter   bool      `db:"is_promoter"`
	ReferredBy   *string   `db:"referred_by"`
	IsRegistered bool      `db:"is_registered"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (p *Principal) Tag() string {
	if p.DisplayTag == nil {
		return ""
	}
	return *p.DisplayTag
}

func (p *Principal) PhoneNumber() string {
	if p.Phone == nil {
		return ""
	}
	return *p.Phone
}

func (p *Principal) Roles() Roles {
	return Roles{Admin: p.IsAdmin, Promoter: p.IsPromoter}
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RolePromoter Role = "promoter"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RolePromoter
}

// Roles are independent flags; a principal may hold both.
type Roles struct {
	Admin    bool `json:"admin"`
	Promoter bool `json:"promoter"`
}

func (r Roles) Has(role Role) bool {
	switch role {
	case RoleAdmin:
		return r.Admin
	case RolePromoter:
		return r.Promoter
	}
	return false
}

// NormalizeTag strips surrounding space and a leading "@".
func NormalizeTag(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), "@")
}

type ReferralCounts struct {
	Invited    int `db:"invited"    json:"invited"`
	Registered int `db:"registered" json:"registered"`
}

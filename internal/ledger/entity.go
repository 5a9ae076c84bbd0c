// AngelaMos | 2026
// entity.go

package ledger

import (
	"time"

	"github.com/carterperez-dev/gatepass/internal/ticket"
)

type Redemption struct {
	ID          string       `db:"id"           json:"id"`
	PrincipalID string       `db:"principal_id" json:"principal_id"`
	Class       ticket.Class `db:"ticket_class" json:"ticket_class"`
	Phone       *string      `db:"phone"        json:"-"`
	StaffID     string       `db:"staff_id"     json:"staff_id"`
	RedeemedAt  time.Time    `db:"redeemed_at"  json:"redeemed_at"`
}

type ClassCount struct {
	Class ticket.Class `db:"ticket_class" json:"ticket_class"`
	Count int          `db:"total"        json:"count"`
}

// PromoterAttendance counts redemptions of referred principals, grouped by
// the referring promoter. PromoterTag is empty for unreferred attendees.
type PromoterAttendance struct {
	PromoterID  string       `db:"promoter_id"  json:"promoter_id"`
	PromoterTag string       `db:"promoter_tag" json:"promoter_tag"`
	Class       ticket.Class `db:"ticket_class" json:"ticket_class"`
	Count       int          `db:"total"        json:"count"`
}

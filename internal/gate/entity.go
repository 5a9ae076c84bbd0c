// AngelaMos | 2026
// entity.go

package gate

import (
	"time"

	"github.com/carterperez-dev/gatepass/internal/ledger"
	"github.com/carterperez-dev/gatepass/internal/outbox"
	"github.com/carterperez-dev/gatepass/internal/principal"
	"github.com/carterperez-dev/gatepass/internal/ticket"
)

// Verdict is what staff see after a scan. Forged, unknown-class and
// unknown-principal codes all read "invalid" so scanners learn nothing
// about who is registered.
type Verdict string

const (
	VerdictAdmitted        Verdict = "admitted"
	VerdictAlreadyRedeemed Verdict = "already_redeemed"
	VerdictInvalid         Verdict = "invalid"
	VerdictRetake          Verdict = "retake"
)

type ScanResult struct {
	Verdict     Verdict      `json:"verdict"`
	PrincipalID string       `json:"principal_id,omitempty"`
	Class       ticket.Class `json:"ticket_class,omitempty"`
	RedeemedAt  *time.Time   `json:"redeemed_at,omitempty"`
}

type IssuanceStatus string

const (
	StatusIssued       IssuanceStatus = "issued"
	StatusPolicyDenied IssuanceStatus = "policy_denied"
)

type IssuanceResult struct {
	Status     IssuanceStatus    `json:"status"`
	Token      string            `json:"token,omitempty"`
	Class      ticket.Class      `json:"ticket_class,omitempty"`
	FirstIssue bool              `json:"first_issue"`
	Deliveries []outbox.Delivery `json:"deliveries"`
}

type StartResult struct {
	Principal  principal.PrincipalResponse `json:"principal"`
	Created    bool                        `json:"created"`
	Deliveries []outbox.Delivery           `json:"deliveries"`
}

type StatsKind string

const (
	StatsRegistrations        StatsKind = "registrations"
	StatsRedemptions          StatsKind = "redemptions"
	StatsInvited              StatsKind = "invited"
	StatsAttendanceByPromoter StatsKind = "attendance_by_promoter"
)

func (k StatsKind) Valid() bool {
	switch k {
	case StatsRegistrations, StatsRedemptions, StatsInvited, StatsAttendanceByPromoter:
		return true
	}
	return false
}

type RedemptionStats struct {
	Total   int                  `json:"total"`
	ByClass map[ticket.Class]int `json:"by_class"`
}

// Stats carries exactly one populated section, matching Kind.
type Stats struct {
	Kind          StatsKind                   `json:"kind"`
	Registrations *int                        `json:"registrations,omitempty"`
	Redemptions   *RedemptionStats            `json:"redemptions,omitempty"`
	Invited       *principal.ReferralCounts   `json:"invited,omitempty"`
	Attendance    []ledger.PromoterAttendance `json:"attendance,omitempty"`
}

// Totals is the operator overview used by the reporter and /v1/admin/stats.
type Totals struct {
	Registrations int                  `json:"registrations"`
	Redemptions   int                  `json:"redemptions"`
	ByClass       map[ticket.Class]int `json:"by_class"`
}

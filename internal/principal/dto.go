// AngelaMos | 2026
// dto.go

package principal

import (
	"time"
)

type PrincipalResponse struct {
	ID           string    `json:"id"`
	DisplayTag   string    `json:"display_tag,omitempty"`
	HasPhone     bool      `json:"has_phone"`
	Roles        Roles     `json:"roles"`
	IsRegistered bool      `json:"is_registered"`
	ReferredBy   string    `json:"referred_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func ToPrincipalResponse(p *Principal) PrincipalResponse {
	resp := PrincipalResponse{
		ID:           p.ID,
		DisplayTag:   p.Tag(),
		HasPhone:     p.Phone != nil && *p.Phone != "",
		Roles:        p.Roles(),
		IsRegistered: p.IsRegistered,
		CreatedAt:    p.CreatedAt,
	}
	if p.ReferredBy != nil {
		resp.ReferredBy = *p.ReferredBy
	}
	return resp
}

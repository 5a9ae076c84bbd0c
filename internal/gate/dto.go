// AngelaMos | 2026
// dto.go

package gate

type StartRequest struct {
	PrincipalID string `json:"principal_id" validate:"required,max=64"`
	DisplayTag  string `json:"display_tag"  validate:"omitempty,max=64"`
	Referrer    string `json:"referrer"     validate:"omitempty,max=64"`
}

type ContactRequest struct {
	PrincipalID string `json:"principal_id" validate:"required,max=64"`
	Phone       string `json:"phone"        validate:"required,max=32"`
	DisplayTag  string `json:"display_tag"  validate:"omitempty,max=64"`
	Referrer    string `json:"referrer"     validate:"omitempty,max=64"`
}

type IssuanceRequest struct {
	PrincipalID string `json:"principal_id" validate:"required,max=64"`
}

type ScanTokenRequest struct {
	StaffID string `json:"staff_id" validate:"required,max=64"`
	Token   string `json:"token"    validate:"required,max=512"`
}

type RoleRequest struct {
	ActorID   string `json:"actor_id"   validate:"required,max=64"`
	TargetTag string `json:"target_tag" validate:"required,max=65"`
	Role      string `json:"role"       validate:"required,oneof=admin promoter"`
}

type RolesResponse struct {
	PrincipalID string `json:"principal_id"`
	Admin       bool   `json:"admin"`
	Promoter    bool   `json:"promoter"`
}

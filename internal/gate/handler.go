// AngelaMos | 2026
// handler.go

package gate

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/gatepass/internal/access"
	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/principal"
)

const scanFormField = "image"

type Handler struct {
	service   *Service
	policy    *access.Policy
	validator *validator.Validate
	maxImage  int64
}

func NewHandler(service *Service, policy *access.Policy, maxImage int64) *Handler {
	return &Handler{
		service:   service,
		policy:    policy,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		maxImage:  maxImage,
	}
}

// RegisterRoutes mounts the chat-layer API. scanLimiter wraps the scan
// endpoints only.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	scanLimiter func(http.Handler) http.Handler,
) {
	r.Route("/principals", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/contact", h.RegisterContact)
		r.Get("/{id}/roles", h.Roles)
	})

	r.Post("/issuance", h.RequestIssuance)

	r.Route("/scans", func(r chi.Router) {
		if scanLimiter != nil {
			r.Use(scanLimiter)
		}
		r.Post("/", h.SubmitScan)
		r.Post("/token", h.SubmitToken)
	})

	r.Route("/roles", func(r chi.Router) {
		r.Post("/grant", h.GrantRole)
		r.Post("/revoke", h.RevokeRole)
	})

	r.Get("/stats/{kind}", h.QueryStats)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Start(r.Context(), req.PrincipalID, req.DisplayTag, req.Referrer)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Created {
		core.Created(w, result)
		return
	}
	core.OK(w, result)
}

func (h *Handler) RegisterContact(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.RegisterContact(
		r.Context(),
		req.PrincipalID,
		req.Phone,
		req.DisplayTag,
		req.Referrer,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, result)
}

func (h *Handler) Roles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	roles, err := h.policy.RoleOf(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, RolesResponse{
		PrincipalID: id,
		Admin:       roles.Admin,
		Promoter:    roles.Promoter,
	})
}

func (h *Handler) RequestIssuance(w http.ResponseWriter, r *http.Request) {
	var req IssuanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.RequestIssuance(r.Context(), req.PrincipalID)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, result)
}

// SubmitScan takes multipart/form-data with a staff_id field and the photo
// in the "image" part.
func (h *Handler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxImage); err != nil {
		core.BadRequest(w, "expected multipart form with staff_id and image")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll() //nolint:errcheck // temp file cleanup
		}
	}()

	staffID := r.FormValue("staff_id")
	if staffID == "" {
		core.BadRequest(w, "staff_id is required")
		return
	}

	file, _, err := r.FormFile(scanFormField)
	if err != nil {
		core.BadRequest(w, "image is required")
		return
	}
	defer file.Close() //nolint:errcheck // multipart part

	image, err := io.ReadAll(io.LimitReader(file, h.maxImage+1))
	if err != nil {
		core.BadRequest(w, "could not read image")
		return
	}

	result, err := h.service.SubmitScan(r.Context(), staffID, image)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, result)
}

func (h *Handler) SubmitToken(w http.ResponseWriter, r *http.Request) {
	var req ScanTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.SubmitToken(r.Context(), req.StaffID, req.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, result)
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, true)
}

func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, false)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request, grant bool) {
	var req RoleRequest
	if !h.decode(w, r, &req) {
		return
	}

	role := principal.Role(req.Role)

	var (
		result *access.ChangeResult
		err    error
	)
	if grant {
		result, err = h.service.GrantRole(r.Context(), req.ActorID, req.TargetTag, role)
	} else {
		result, err = h.service.RevokeRole(r.Context(), req.ActorID, req.TargetTag, role)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, result)
}

func (h *Handler) QueryStats(w http.ResponseWriter, r *http.Request) {
	kind := StatsKind(chi.URLParam(r, "kind"))
	actorID := r.URL.Query().Get("actor_id")
	if actorID == "" {
		core.BadRequest(w, "actor_id is required")
		return
	}

	stats, err := h.service.QueryStats(r.Context(), actorID, kind)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, stats)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}

	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		core.Forbidden(w, "not permitted for this principal")
	case errors.Is(err, core.ErrUnknownPrincipal):
		core.NotFound(w, "principal")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "principal")
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, err.Error())
	default:
		core.InternalServerError(w, err)
	}
}

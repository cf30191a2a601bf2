package agencies

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/innkeep/innkeep/internal/platform/httpx"
	"github.com/innkeep/innkeep/internal/rbac"
	"github.com/innkeep/innkeep/internal/shared"
)

// Handler exposes agency HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds the agencies handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers agency routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAgencyView))
		r.Get("/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAgencyCommissions))
		r.Get("/{id}/commissions/report", h.handleReport)
		r.Post("/{id}/commissions/invoice", h.handleMark(CommissionInvoiced))
		r.Post("/{id}/commissions/pay", h.handleMark(CommissionPaid))
	})
}

type markRequest struct {
	ReservationIDs []int64 `json:"reservation_ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	agency, err := h.service.Get(r.Context(), actor.OrganizationID, id)
	if err != nil {
		h.fail(w, "agency get", err)
		return
	}
	httpx.JSON(w, http.StatusOK, agency)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, to, err := httpx.QueryDates(r, "from", "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	report, err := h.service.CommissionReport(r.Context(), actor.OrganizationID, id, from, to)
	if err != nil {
		h.fail(w, "agency commission report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleMark(target CommissionStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathInt64(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var req markRequest
		if err := httpx.Bind(r, h.validator, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		actor, _ := shared.ActorFromContext(r.Context())
		var changed int
		if target == CommissionPaid {
			changed, err = h.service.MarkCommissionsPaid(r.Context(), actor, id, req.ReservationIDs)
		} else {
			changed, err = h.service.MarkCommissionsInvoiced(r.Context(), actor, id, req.ReservationIDs)
		}
		if err != nil {
			h.fail(w, "agency mark commissions", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"status": target, "updated": changed})
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

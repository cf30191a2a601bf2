package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/innkeep/innkeep/internal/platform/httpx"
	"github.com/innkeep/innkeep/internal/rbac"
	"github.com/innkeep/innkeep/internal/shared"
)

// CalendarCache serves cached calendar reads.
type CalendarCache interface {
	Calendar(ctx context.Context, propertyID, roomTypeID int64, start, end time.Time, loader func(context.Context) ([]Record, error)) ([]Record, error)
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	cache     CalendarCache
	guard     shared.PropertyGuard
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, cache CalendarCache, guard shared.PropertyGuard, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, cache: cache, guard: guard, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView))
		r.Get("/", h.handleCalendar)
		r.Get("/availability", h.handleAvailability)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInventoryEdit))
		r.Put("/bulk", h.handleBulk)
	})
}

type bulkRequest struct {
	PropertyID         int64  `json:"property_id" validate:"required,gt=0"`
	RoomTypeID         int64  `json:"room_type_id" validate:"required,gt=0"`
	StartDate          string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate            string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Allotment          *int   `json:"allotment" validate:"omitempty,gte=0"`
	OverbookingAllowed *int   `json:"overbooking_allowed" validate:"omitempty,gte=0"`
	StopSell           *bool  `json:"stop_sell"`
	Closed             *bool  `json:"closed"`
	MinNights          *int   `json:"min_nights" validate:"omitempty,gte=1"`
	MaxNights          *int   `json:"max_nights" validate:"omitempty,gte=1"`
}

func (h *Handler) handleCalendar(w http.ResponseWriter, r *http.Request) {
	propertyID, roomTypeID, ok := h.scope(w, r)
	if !ok {
		return
	}
	from, to, err := httpx.QueryDates(r, "from", "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	load := func(ctx context.Context) ([]Record, error) {
		return h.service.FindRange(ctx, propertyID, roomTypeID, from, to)
	}
	var records []Record
	if h.cache != nil {
		records, err = h.cache.Calendar(r.Context(), propertyID, roomTypeID, from, to, load)
	} else {
		records, err = load(r.Context())
	}
	if err != nil {
		h.fail(w, "inventory calendar", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.WholePage(records))
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	propertyID, roomTypeID, ok := h.scope(w, r)
	if !ok {
		return
	}
	checkIn, checkOut, err := httpx.QueryDates(r, "check_in", "check_out")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rooms, err := httpx.QueryInt(r, "rooms", 1)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	verdict, err := h.service.CheckAvailability(r.Context(), propertyID, roomTypeID, checkIn, checkOut, rooms)
	if err != nil {
		h.fail(w, "inventory availability", err)
		return
	}
	httpx.JSON(w, http.StatusOK, verdict)
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.authorize(r.Context(), actor, req.PropertyID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, err := shared.ParseDate(req.StartDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	end, err := shared.ParseDate(req.EndDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.BulkConfigure(r.Context(), BulkConfigInput{
		OrganizationID:     actor.OrganizationID,
		ActorID:            actor.ID,
		PropertyID:         req.PropertyID,
		RoomTypeID:         req.RoomTypeID,
		Start:              start,
		End:                end,
		Allotment:          req.Allotment,
		OverbookingAllowed: req.OverbookingAllowed,
		StopSell:           req.StopSell,
		Closed:             req.Closed,
		MinNights:          req.MinNights,
		MaxNights:          req.MaxNights,
	})
	if err != nil {
		h.fail(w, "inventory bulk configure", err)
		return
	}
	h.logger.Info("inventory configured",
		slog.Int64("property_id", req.PropertyID),
		slog.Int64("room_type_id", req.RoomTypeID),
		slog.Int("updated", updated))
	httpx.JSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	propertyID, err := httpx.QueryInt64(r, "property_id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	roomTypeID, err := httpx.QueryInt64(r, "room_type_id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.authorize(r.Context(), actor, propertyID); err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	return propertyID, roomTypeID, true
}

func (h *Handler) authorize(ctx context.Context, actor shared.Actor, propertyID int64) error {
	if h.guard == nil {
		return nil
	}
	return h.guard.AuthorizeProperty(ctx, actor, propertyID)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

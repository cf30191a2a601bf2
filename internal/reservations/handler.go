package reservations

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/innkeep/innkeep/internal/audit"
	"github.com/innkeep/innkeep/internal/platform/httpx"
	"github.com/innkeep/innkeep/internal/rbac"
	"github.com/innkeep/innkeep/internal/shared"
	"github.com/innkeep/innkeep/report"
)

// HistoryReader loads the audit trail of one entity.
type HistoryReader interface {
	EntityHistory(ctx context.Context, orgID int64, entity, entityID string) ([]audit.TimelineRow, error)
}

// VoucherRenderer turns a voucher into a PDF.
type VoucherRenderer interface {
	RenderVoucher(ctx context.Context, v report.Voucher) ([]byte, error)
}

// Handler exposes reservation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	history   HistoryReader
	vouchers  VoucherRenderer
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds the reservations handler. history and vouchers may be nil,
// which disables their endpoints.
func NewHandler(logger *slog.Logger, service *Service, history HistoryReader, vouchers VoucherRenderer, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, history: history, vouchers: vouchers, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers reservation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermReservationView))
		r.Get("/", h.handleList)
		r.Get("/by-reference/{ref}", h.handleGetByReference)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/voucher.pdf", h.handleVoucher)
	})
	r.With(h.rbac.RequireAll(shared.PermReservationView, shared.PermAuditView)).Get("/{id}/history", h.handleHistory)
	r.With(h.rbac.RequireAll(shared.PermReservationCreate)).Post("/", h.handleCreate)
	r.With(h.rbac.RequireAll(shared.PermReservationCancel)).Post("/{id}/cancel", h.handleCancel)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermReservationOperate))
		r.Post("/{id}/check-in", h.handleTransition(h.service.CheckIn))
		r.Post("/{id}/check-out", h.handleTransition(h.service.CheckOut))
		r.Post("/{id}/no-show", h.handleTransition(h.service.MarkNoShow))
	})
}

type createRequest struct {
	PropertyID            int64  `json:"property_id" validate:"required,gt=0"`
	RoomTypeID            int64  `json:"room_type_id" validate:"required,gt=0"`
	RatePlanID            int64  `json:"rate_plan_id" validate:"required,gt=0"`
	AgencyID              *int64 `json:"agency_id" validate:"omitempty,gt=0"`
	CheckInDate           string `json:"check_in_date" validate:"required,datetime=2006-01-02"`
	CheckOutDate          string `json:"check_out_date" validate:"required,datetime=2006-01-02"`
	RoomsRequested        int    `json:"rooms_requested" validate:"required,gte=1,lte=50"`
	Guest                 Guest  `json:"guest"`
	Source                string `json:"source" validate:"omitempty,oneof=DIRECT AGENCY PHONE EMAIL WALK_IN WEBSITE"`
	PaymentResponsibility string `json:"payment_responsibility" validate:"omitempty,oneof=GUEST AGENCY"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	checkIn, err := shared.ParseDate(req.CheckInDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	checkOut, err := shared.ParseDate(req.CheckOutDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.Create(r.Context(), actor, CreateInput{
		IdempotencyKey:        r.Header.Get("Idempotency-Key"),
		PropertyID:            req.PropertyID,
		RoomTypeID:            req.RoomTypeID,
		RatePlanID:            req.RatePlanID,
		AgencyID:              req.AgencyID,
		CheckIn:               checkIn,
		CheckOut:              checkOut,
		RoomsRequested:        req.RoomsRequested,
		Guest:                 req.Guest,
		Source:                Source(req.Source),
		PaymentResponsibility: PaymentResponsibility(req.PaymentResponsibility),
	})
	if err != nil {
		h.fail(w, "create reservation", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/reservations/%d", result.Reservation.ID))
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:    Status(strings.TrimSpace(q.Get("status"))),
		Reference: strings.ToUpper(strings.TrimSpace(q.Get("reference"))),
		GuestName: strings.TrimSpace(q.Get("guest")),
	}
	var err error
	if filter.PropertyID, err = httpx.QueryInt64(r, "property_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.AgencyID, err = httpx.QueryInt64(r, "agency_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Page, err = httpx.QueryInt(r, "page", 1); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Limit, err = httpx.QueryInt(r, "limit", 20); err != nil {
		httpx.RespondError(w, err)
		return
	}
	for key, target := range map[string]**time.Time{"check_in_from": &filter.CheckInFrom, "check_in_to": &filter.CheckInTo} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			parsed, err := shared.ParseDate(v)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			*target = &parsed
		}
	}
	actor, _ := shared.ActorFromContext(r.Context())
	page, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.fail(w, "list reservations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	res, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetByReference(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	res, err := h.service.GetByReference(r.Context(), actor, chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, "get reservation by reference", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, h.validator, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	actor, _ := shared.ActorFromContext(r.Context())
	res, err := h.service.Cancel(r.Context(), actor, id, req.Reason)
	if err != nil {
		h.fail(w, "cancel reservation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleTransition(apply func(context.Context, shared.Actor, int64) (Reservation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathInt64(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		actor, _ := shared.ActorFromContext(r.Context())
		res, err := apply(r.Context(), actor, id)
		if err != nil {
			h.fail(w, "reservation transition", err)
			return
		}
		httpx.JSON(w, http.StatusOK, res)
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "audit history unavailable")
		return
	}
	res, ok := h.load(w, r)
	if !ok {
		return
	}
	rows, err := h.history.EntityHistory(r.Context(), res.OrganizationID, AuditEntity, fmt.Sprintf("%d", res.ID))
	if err != nil {
		h.fail(w, "reservation history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.WholePage(rows))
}

func (h *Handler) handleVoucher(w http.ResponseWriter, r *http.Request) {
	if h.vouchers == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "voucher rendering unavailable")
		return
	}
	res, ok := h.load(w, r)
	if !ok {
		return
	}
	pdf, err := h.vouchers.RenderVoucher(r.Context(), VoucherFor(res, time.Now().UTC()))
	if err != nil {
		h.logger.Error("render voucher", slog.Int64("reservation_id", res.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "voucher rendering failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", res.BookingReference+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// VoucherFor maps a reservation onto the printable voucher.
func VoucherFor(res Reservation, issuedAt time.Time) report.Voucher {
	return report.Voucher{
		BookingReference: res.BookingReference,
		Status:           string(res.Status),
		GuestName:        res.Guest.FullName(),
		Adults:           res.Guest.Adults,
		Children:         res.Guest.Children,
		PropertyID:       res.PropertyID,
		RoomTypeID:       res.RoomTypeID,
		RatePlanID:       res.RatePlanID,
		CheckIn:          res.CheckInDate,
		CheckOut:         res.CheckOutDate,
		Nights:           len(res.Nights()),
		Rooms:            res.RoomsRequested,
		Currency:         string(res.Currency),
		TotalPrice:       res.TotalPrice.StringFixed(2),
		TaxAmount:        res.TaxAmount.StringFixed(2),
		TotalWithTax:     res.TotalWithTax.StringFixed(2),
		AgencyID:         res.AgencyID,
		PaymentBy:        string(res.PaymentResponsibility),
		IssuedAt:         issuedAt,
	}
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (Reservation, bool) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return Reservation{}, false
	}
	actor, _ := shared.ActorFromContext(r.Context())
	res, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get reservation", err)
		return Reservation{}, false
	}
	return res, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

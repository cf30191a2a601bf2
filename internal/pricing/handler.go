package pricing

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/innkeep/innkeep/internal/inventory"
	"github.com/innkeep/innkeep/internal/platform/httpx"
	"github.com/innkeep/innkeep/internal/rbac"
	"github.com/innkeep/innkeep/internal/shared"
)

const quoteTimeout = 2 * time.Second

// AvailabilityChecker answers the inventory half of a quote.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, propertyID, roomTypeID int64, checkIn, checkOut time.Time, rooms int) (inventory.Availability, error)
}

// Handler wires HTTP endpoints for the price ledger.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	availability AvailabilityChecker
	guard        shared.PropertyGuard
	rbac         rbac.Middleware
	validator    *validator.Validate
}

// NewHandler constructs pricing handler.
func NewHandler(logger *slog.Logger, service *Service, availability AvailabilityChecker, guard shared.PropertyGuard, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, availability: availability, guard: guard, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers price routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPricesView))
		r.Get("/", h.handleList)
		r.Get("/quote", h.handleQuote)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPricesEdit))
		r.Put("/bulk", h.handleBulk)
		r.Delete("/", h.handleDelete)
	})
}

type bulkRequest struct {
	PropertyID  int64           `json:"property_id" validate:"required,gt=0"`
	RoomTypeID  int64           `json:"room_type_id" validate:"required,gt=0"`
	RatePlanID  int64           `json:"rate_plan_id" validate:"required,gt=0"`
	StartDate   string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string          `json:"end_date" validate:"required,datetime=2006-01-02"`
	Weekdays    []int           `json:"weekdays" validate:"omitempty,dive,min=0,max=6"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	Source      string          `json:"source"`
	IsAvailable *bool           `json:"is_available"`
}

type quoteResponse struct {
	Quote        Quote                  `json:"quote"`
	Rooms        int                    `json:"rooms"`
	TotalPrice   decimal.Decimal        `json:"total_price"`
	Tax          Tax                    `json:"tax"`
	Availability inventory.Availability `json:"availability"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	propertyID, roomTypeID, ratePlanID, ok := h.scope(w, r)
	if !ok {
		return
	}
	from, to, err := httpx.QueryDates(r, "from", "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	records, err := h.service.FindRange(r.Context(), propertyID, roomTypeID, ratePlanID, from, to)
	if err != nil {
		h.fail(w, "list prices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.WholePage(records))
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	propertyID, roomTypeID, ratePlanID, ok := h.scope(w, r)
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

	ctx, cancel := context.WithTimeout(r.Context(), quoteTimeout)
	defer cancel()
	var resp quoteResponse
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		quote, err := h.service.SumRange(ctx, propertyID, roomTypeID, ratePlanID, checkIn, checkOut)
		if err != nil {
			return err
		}
		resp.Quote = quote
		return nil
	})
	if h.availability != nil {
		g.Go(func() error {
			verdict, err := h.availability.CheckAvailability(ctx, propertyID, roomTypeID, checkIn, checkOut, rooms)
			if err != nil {
				return err
			}
			resp.Availability = verdict
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.fail(w, "price quote", err)
		return
	}
	resp.Rooms = rooms
	resp.TotalPrice = resp.Quote.Subtotal.Mul(decimal.NewFromInt(int64(rooms))).Round(2)
	resp.Tax = h.service.ApplyTax(resp.TotalPrice)
	httpx.JSON(w, http.StatusOK, resp)
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
	input, err := req.toInput(actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.BulkUpsert(r.Context(), input)
	if err != nil {
		h.fail(w, "bulk upsert prices", err)
		return
	}
	h.logger.Info("prices upserted",
		slog.Int64("property_id", req.PropertyID),
		slog.String("source", string(input.Source)),
		slog.Int("updated", n))
	httpx.JSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	propertyID, roomTypeID, ratePlanID, ok := h.scope(w, r)
	if !ok {
		return
	}
	from, to, err := httpx.QueryDates(r, "from", "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	n, err := h.service.DeleteRange(r.Context(), DeleteRangeInput{
		OrganizationID: actor.OrganizationID,
		ActorID:        actor.ID,
		PropertyID:     propertyID,
		RoomTypeID:     roomTypeID,
		RatePlanID:     ratePlanID,
		Start:          from,
		End:            to,
	})
	if err != nil {
		h.fail(w, "delete prices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (req bulkRequest) toInput(actor shared.Actor) (BulkUpsertInput, error) {
	start, err := shared.ParseDate(req.StartDate)
	if err != nil {
		return BulkUpsertInput{}, err
	}
	end, err := shared.ParseDate(req.EndDate)
	if err != nil {
		return BulkUpsertInput{}, err
	}
	cur, err := ParseCurrency(req.Currency)
	if err != nil {
		return BulkUpsertInput{}, err
	}
	source := SourceManual
	if s := strings.TrimSpace(req.Source); s != "" {
		source = Source(strings.ToUpper(s))
	}
	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	weekdays := make([]time.Weekday, 0, len(req.Weekdays))
	for _, wd := range req.Weekdays {
		weekdays = append(weekdays, time.Weekday(wd))
	}
	return BulkUpsertInput{
		OrganizationID: actor.OrganizationID,
		ActorID:        actor.ID,
		PropertyID:     req.PropertyID,
		RoomTypeID:     req.RoomTypeID,
		RatePlanID:     req.RatePlanID,
		Start:          start,
		End:            end,
		Weekdays:       weekdays,
		Amount:         req.Amount,
		Currency:       cur,
		Source:         source,
		IsAvailable:    available,
	}, nil
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (int64, int64, int64, bool) {
	var ids [3]int64
	for i, name := range []string{"property_id", "room_type_id", "rate_plan_id"} {
		id, err := httpx.QueryInt64(r, name)
		if err != nil {
			httpx.RespondError(w, err)
			return 0, 0, 0, false
		}
		ids[i] = id
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.authorize(r.Context(), actor, ids[0]); err != nil {
		httpx.RespondError(w, err)
		return 0, 0, 0, false
	}
	return ids[0], ids[1], ids[2], true
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

package reservations

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/innkeep/innkeep/internal/audit"
	"github.com/innkeep/innkeep/internal/catalog"
	"github.com/innkeep/innkeep/internal/inventory"
	"github.com/innkeep/innkeep/internal/pricing"
	"github.com/innkeep/innkeep/internal/rbac"
	"github.com/innkeep/innkeep/internal/shared"
	"github.com/innkeep/innkeep/report"
)

type stubHistory struct {
	rows   []audit.TimelineRow
	entity string
	id     string
}

func (h *stubHistory) EntityHistory(ctx context.Context, orgID int64, entity, entityID string) ([]audit.TimelineRow, error) {
	h.entity, h.id = entity, entityID
	return h.rows, nil
}

type stubVouchers struct {
	got report.Voucher
	err error
}

func (v *stubVouchers) RenderVoucher(ctx context.Context, voucher report.Voucher) ([]byte, error) {
	v.got = voucher
	if v.err != nil {
		return nil, v.err
	}
	return []byte("%PDF-1.7"), nil
}

type handlerFixture struct {
	db       *memoryDB
	prices   *priceBook
	history  *stubHistory
	vouchers *stubVouchers
	router   http.Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &handlerFixture{db: newMemoryDB(), prices: &priceBook{}, history: &stubHistory{}, vouchers: &stubVouchers{}}
	svc := NewService(Deps{
		Repo:        f.db,
		Catalog:     catalog.NewService(catalogBook{}),
		Inventory:   inventory.NewService(inventoryView{db: f.db}, nil, logger, inventory.ServiceConfig{}),
		Pricing:     pricing.NewService(f.prices, nil, logger, pricing.DefaultTaxRate),
		Agencies:    &agencyLedger{rate: dec("10"), active: true},
		Idempotency: &memoryIdempotency{},
		Logger:      logger,
	})
	h := NewHandler(logger, svc, f.history, f.vouchers, rbac.Middleware{Service: rbac.NewDefaultService(), Logger: logger})
	r := chi.NewRouter()
	r.Route("/api/v1/reservations", h.MountRoutes)
	f.router = r
	return f
}

func (f *handlerFixture) seed(from, to string, allotment int) {
	for _, night := range shared.StayNights(day(from), day(to)) {
		f.db.seedNight(propertyID, roomTypeID, night, allotment, 0, 0)
		f.prices.add(propertyID, roomTypeID, ratePlanID, night, "120.50", pricing.CurrencyEUR)
	}
}

func (f *handlerFixture) do(method, target, body, role string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if role != "" {
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: 9, OrganizationID: 1, Role: role}))
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

const createBody = `{"property_id":1,"room_type_id":10,"rate_plan_id":100,"check_in_date":"2025-12-01","check_out_date":"2025-12-03","rooms_requested":1,"guest":{"first_name":"Grace","last_name":"Hopper","adults":1}}`

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestCreateEndpointReturnsReservationAndPricing(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed("2025-12-01", "2025-12-03", 2)

	rr := f.do(http.MethodPost, "/api/v1/reservations", createBody, shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var body struct {
		Reservation struct {
			ID               int64  `json:"id"`
			BookingReference string `json:"booking_reference"`
			Status           string `json:"status"`
			TotalPrice       string `json:"total_price"`
		} `json:"reservation"`
		Pricing struct {
			Nights         int               `json:"nights"`
			TotalWithTax   string            `json:"total_with_tax"`
			PriceBreakdown []json.RawMessage `json:"price_breakdown"`
		} `json:"pricing"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "confirmed", body.Reservation.Status)
	require.True(t, strings.HasPrefix(body.Reservation.BookingReference, "BK-"))
	require.Equal(t, "241", body.Reservation.TotalPrice)
	require.Equal(t, 2, body.Pricing.Nights)
	require.Equal(t, "257.87", body.Pricing.TotalWithTax)
	require.Len(t, body.Pricing.PriceBreakdown, 2)
	require.Equal(t, "/api/v1/reservations/1", rr.Header().Get("Location"))
}

func TestCreateEndpointMapsUnavailableToConflict(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed("2025-12-01", "2025-12-03", 0)

	rr := f.do(http.MethodPost, "/api/v1/reservations", createBody, shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	body := decodeProblem(t, rr)
	require.Equal(t, "no_availability", body["reason"])
	require.Equal(t, "2025-12-01", body["date"])
}

func TestCreateEndpointMapsMissingPriceTo422(t *testing.T) {
	f := newHandlerFixture(t)
	f.db.seedNight(propertyID, roomTypeID, day("2025-12-01"), 2, 0, 0)
	f.db.seedNight(propertyID, roomTypeID, day("2025-12-02"), 2, 0, 0)
	f.prices.add(propertyID, roomTypeID, ratePlanID, day("2025-12-01"), "100", pricing.CurrencyEUR)

	rr := f.do(http.MethodPost, "/api/v1/reservations", createBody, shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "2025-12-02")
}

func TestCreateEndpointValidatesPayload(t *testing.T) {
	f := newHandlerFixture(t)
	cases := map[string]string{
		"bad date":   strings.Replace(createBody, "2025-12-03", "03/12/2025", 1),
		"no rooms":   strings.Replace(createBody, `"rooms_requested":1`, `"rooms_requested":0`, 1),
		"bad source": strings.Replace(createBody, `"rooms_requested":1`, `"rooms_requested":1,"source":"FAX"`, 1),
		"not json":   `{`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/api/v1/reservations", payload, shared.RoleFrontDesk, nil)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}
}

func TestCreateEndpointHonoursIdempotencyKey(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed("2025-12-01", "2025-12-03", 5)
	headers := map[string]string{"Idempotency-Key": "booking-77"}

	first := f.do(http.MethodPost, "/api/v1/reservations", createBody, shared.RoleFrontDesk, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	second := f.do(http.MethodPost, "/api/v1/reservations", createBody, shared.RoleFrontDesk, headers)
	require.Equal(t, http.StatusConflict, second.Code)
	require.Equal(t, 1, f.db.count())
}

func TestRoutesEnforcePermissions(t *testing.T) {
	f := newHandlerFixture(t)
	res := f.db.seedReservation(Reservation{OrganizationID: 1, Status: StatusConfirmed, CheckInDate: day("2025-12-01"), CheckOutDate: day("2025-12-02")})
	path := "/api/v1/reservations/" + itoa(res.ID)

	require.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, path, "", "", nil).Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodPost, path+"/cancel", "", shared.RoleAgent, nil).Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodPost, path+"/check-in", "", shared.RoleAgent, nil).Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, path+"/history", "", shared.RoleFrontDesk, nil).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, path, "", shared.RoleAgent, nil).Code)
}

func TestLifecycleEndpoints(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed("2025-12-01", "2025-12-03", 2)
	rr := f.do(http.MethodPost, "/api/v1/reservations", createBody, shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	path := rr.Header().Get("Location")

	rr = f.do(http.MethodPost, path+"/check-out", "", shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	body := decodeProblem(t, rr)
	require.Equal(t, "confirmed", body["current_status"])

	rr = f.do(http.MethodPost, path+"/check-in", "", shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"checked_in"`)

	rr = f.do(http.MethodPost, path+"/cancel", `{"reason":"early departure"}`, shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"cancellation_reason":"early departure"`)
	require.Zero(t, f.db.night(propertyID, roomTypeID, day("2025-12-01")).Sold)

	rr = f.do(http.MethodPost, path+"/cancel", "", shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "reservation already cancelled")
}

func TestGetHidesOtherOrganization(t *testing.T) {
	f := newHandlerFixture(t)
	res := f.db.seedReservation(Reservation{OrganizationID: 2, Status: StatusConfirmed})

	rr := f.do(http.MethodGet, "/api/v1/reservations/"+itoa(res.ID), "", shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	rr = f.do(http.MethodGet, "/api/v1/reservations/by-reference/"+strings.ToLower(res.BookingReference), "", shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListEndpointFilters(t *testing.T) {
	f := newHandlerFixture(t)
	f.db.seedReservation(Reservation{OrganizationID: 1, Status: StatusConfirmed, Guest: Guest{FirstName: "Ada", LastName: "Byron"}})
	f.db.seedReservation(Reservation{OrganizationID: 1, Status: StatusCancelled, Guest: Guest{FirstName: "Alan", LastName: "Turing"}})

	rr := f.do(http.MethodGet, "/api/v1/reservations?status=confirmed", "", shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var page shared.Page[Reservation]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, "Byron", page.Items[0].Guest.LastName)

	rr = f.do(http.MethodGet, "/api/v1/reservations?guest=turing", "", shared.RoleFrontDesk, nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)

	rr = f.do(http.MethodGet, "/api/v1/reservations?check_in_from=yesterday", "", shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHistoryEndpointReadsAuditTrail(t *testing.T) {
	f := newHandlerFixture(t)
	res := f.db.seedReservation(Reservation{OrganizationID: 1, Status: StatusConfirmed})
	f.history.rows = []audit.TimelineRow{{ID: 1, Action: shared.AuditActionCreate, Entity: AuditEntity, EntityID: itoa(res.ID)}}

	rr := f.do(http.MethodGet, "/api/v1/reservations/"+itoa(res.ID)+"/history", "", shared.RolePropertyManager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, AuditEntity, f.history.entity)
	require.Equal(t, itoa(res.ID), f.history.id)
	require.Contains(t, rr.Body.String(), `"action":"CREATE"`)
}

func TestVoucherEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	res := f.db.seedReservation(Reservation{OrganizationID: 1, Status: StatusConfirmed, RoomsRequested: 1,
		CheckInDate: day("2025-12-01"), CheckOutDate: day("2025-12-04"), Guest: Guest{FirstName: "Ada", LastName: "Lovelace"}})

	rr := f.do(http.MethodGet, "/api/v1/reservations/"+itoa(res.ID)+"/voucher.pdf", "", shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	require.Equal(t, "Ada Lovelace", f.vouchers.got.GuestName)
	require.Equal(t, 3, f.vouchers.got.Nights)

	f.vouchers.err = errors.New("gotenberg down")
	rr = f.do(http.MethodGet, "/api/v1/reservations/"+itoa(res.ID)+"/voucher.pdf", "", shared.RoleFrontDesk, nil)
	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestVoucherForFormatsMoney(t *testing.T) {
	res := Reservation{BookingReference: "BK-1", TotalPrice: dec("200"), TaxAmount: dec("14"), TotalWithTax: dec("214"),
		CheckInDate: day("2025-12-01"), CheckOutDate: day("2025-12-03"), Currency: pricing.CurrencyEUR, Status: StatusConfirmed}
	issued := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	v := VoucherFor(res, issued)
	require.Equal(t, "200.00", v.TotalPrice)
	require.Equal(t, "214.00", v.TotalWithTax)
	require.Equal(t, 2, v.Nights)
	require.Equal(t, issued, v.IssuedAt)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

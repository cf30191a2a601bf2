package inventory

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/innkeep/innkeep/internal/rbac"
	"github.com/innkeep/innkeep/internal/shared"
)

type stubGuard struct{ err error }

func (g stubGuard) AuthorizeProperty(ctx context.Context, actor shared.Actor, propertyID int64) error {
	return g.err
}

func newTestRouter(t *testing.T, repo *memoryRepo, guard shared.PropertyGuard) http.Handler {
	t.Helper()
	svc := NewService(repo, nil, nil, ServiceConfig{})
	mw := rbac.Middleware{Service: rbac.NewDefaultService()}
	h := NewHandler(slogDiscard(), svc, nil, guard, mw)
	r := chi.NewRouter()
	r.Route("/api/v1/inventory", h.MountRoutes)
	return r
}

func withActor(req *http.Request, role string) *http.Request {
	ctx := shared.ContextWithActor(req.Context(), shared.Actor{ID: 5, OrganizationID: 1, Role: role})
	return req.WithContext(ctx)
}

func TestAvailabilityEndpointReportsReason(t *testing.T) {
	repo := newMemoryRepo()
	repo.put(Record{PropertyID: 1, RoomTypeID: 2, Date: day("2025-12-01"), Allotment: 5, Sold: 5})
	router := newTestRouter(t, repo, stubGuard{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory/availability?property_id=1&room_type_id=2&check_in=2025-12-01&check_out=2025-12-02&rooms=1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withActor(req, shared.RoleFrontDesk))

	require.Equal(t, http.StatusOK, rr.Code)
	var body Availability
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.False(t, body.Available)
	require.Equal(t, ReasonNoAvailability, body.Reason)
}

func TestCalendarEndpointReturnsListEnvelope(t *testing.T) {
	repo := newMemoryRepo()
	repo.put(Record{PropertyID: 1, RoomTypeID: 2, Date: day("2025-12-01"), Allotment: 5})
	repo.put(Record{PropertyID: 1, RoomTypeID: 2, Date: day("2025-12-02"), Allotment: 5})
	router := newTestRouter(t, repo, stubGuard{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory?property_id=1&room_type_id=2&from=2025-12-01&to=2025-12-31", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withActor(req, shared.RoleFrontDesk))

	require.Equal(t, http.StatusOK, rr.Code)
	var body shared.Page[Record]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	require.Equal(t, 2, body.Pagination.Total)
}

func TestCalendarEndpointRejectsWideRange(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo(), stubGuard{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory?property_id=1&room_type_id=2&from=2025-01-01&to=2027-01-01", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withActor(req, shared.RoleFrontDesk))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBulkEndpointRequiresEditPermission(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo(), stubGuard{})
	payload := `{"property_id":1,"room_type_id":2,"start_date":"2025-12-01","end_date":"2025-12-03","allotment":4}`

	req := httptest.NewRequest(http.MethodPut, "/api/v1/inventory/bulk", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withActor(req, shared.RoleFrontDesk))
	require.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/inventory/bulk", strings.NewReader(payload))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withActor(req, shared.RolePropertyManager))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"updated":3}`, rr.Body.String())
}

func TestBulkEndpointRejectsNegativeAllotment(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo(), stubGuard{})
	payload := `{"property_id":1,"room_type_id":2,"start_date":"2025-12-01","end_date":"2025-12-03","allotment":-2}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/inventory/bulk", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withActor(req, shared.RolePropertyManager))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBulkEndpointRejectsZeroStayLimits(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo(), stubGuard{})
	for _, field := range []string{"min_nights", "max_nights"} {
		payload := `{"property_id":1,"room_type_id":2,"start_date":"2025-12-01","end_date":"2025-12-03","` + field + `":0}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/inventory/bulk", strings.NewReader(payload))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, withActor(req, shared.RolePropertyManager))
		require.Equal(t, http.StatusBadRequest, rr.Code, field)
	}
}

func TestForeignPropertyIsHidden(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo(), stubGuard{err: shared.ErrNotFound})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory?property_id=1&room_type_id=2&from=2025-12-01&to=2025-12-02", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withActor(req, shared.RoleFrontDesk))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

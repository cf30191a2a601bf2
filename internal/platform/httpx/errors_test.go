package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/innkeep/innkeep/internal/shared"
)

type extError struct{}

func (extError) Error() string { return "night blocked" }
func (extError) Unwrap() error { return shared.ErrUnavailable }
func (extError) ProblemExtensions() map[string]any {
	return map[string]any{"date": "2025-12-02", "reason": "stop_sell"}
}

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: reservation 9", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: rooms", shared.ErrValidation), http.StatusBadRequest},
		{shared.ErrUnavailable, http.StatusConflict},
		{shared.ErrPricingIncomplete, http.StatusUnprocessableEntity},
		{shared.ErrInvalidState, http.StatusConflict},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{&pgconn.PgError{Code: "23505"}, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.want, rr.Code, tc.err.Error())
		require.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestRespondErrorCarriesExtensions(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("booking: %w", extError{}))

	require.Equal(t, http.StatusConflict, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Unavailable", body["title"])
	require.Equal(t, "2025-12-02", body["date"])
	require.Equal(t, "stop_sell", body["reason"])
	require.EqualValues(t, 409, body["status"])
}

func TestInternalErrorsHideDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: password authentication failed"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotContains(t, body, "detail")
}

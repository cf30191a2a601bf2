package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innkeep/innkeep/internal/shared"
)

func guarded(mw func(http.Handler) http.Handler) http.Handler {
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func requestAs(actor *shared.Actor) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), *actor))
	}
	return req
}

func TestRequireAny(t *testing.T) {
	mw := Middleware{Service: NewDefaultService()}
	handler := guarded(mw.RequireAny(shared.PermInventoryEdit, shared.PermAuditView))

	cases := []struct {
		name  string
		actor *shared.Actor
		want  int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"front desk", &shared.Actor{ID: 1, OrganizationID: 1, Role: shared.RoleFrontDesk}, http.StatusForbidden},
		{"manager", &shared.Actor{ID: 1, OrganizationID: 1, Role: shared.RolePropertyManager}, http.StatusNoContent},
		{"unknown role", &shared.Actor{ID: 1, OrganizationID: 1, Role: "auditor"}, http.StatusForbidden},
		{"role casing", &shared.Actor{ID: 1, OrganizationID: 1, Role: "Org_Admin"}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, requestAs(tc.actor))
			require.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestRequireAll(t *testing.T) {
	mw := Middleware{Service: NewDefaultService()}
	handler := guarded(mw.RequireAll(shared.PermReservationCreate, shared.PermReservationCancel))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestAs(&shared.Actor{ID: 1, OrganizationID: 1, Role: shared.RoleAgent}))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestAs(&shared.Actor{ID: 1, OrganizationID: 1, Role: shared.RoleFrontDesk}))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestListRolesSorted(t *testing.T) {
	roles := NewDefaultService().ListRoles()
	require.Len(t, roles, 6)
	require.Equal(t, shared.RoleAgent, roles[0].Name)
	for i := 1; i < len(roles); i++ {
		require.Less(t, roles[i-1].Name, roles[i].Name)
	}
	for _, role := range roles {
		if role.Name == shared.RoleSuperAdmin {
			require.ElementsMatch(t, shared.CoreScopes(), role.Permissions)
		}
	}
}

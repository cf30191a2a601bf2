package shared

// Booking core permissions.
const (
	PermInventoryView = "inventory.view"
	PermInventoryEdit = "inventory.edit"

	PermPricesView = "prices.view"
	PermPricesEdit = "prices.edit"

	PermReservationView    = "reservation.view"
	PermReservationCreate  = "reservation.create"
	PermReservationCancel  = "reservation.cancel"
	PermReservationOperate = "reservation.operate"

	PermAgencyView        = "agency.view"
	PermAgencyCommissions = "agency.commissions"

	PermAuditView = "audit.view"
)

// CoreScopes lists all permissions related to the booking core.
func CoreScopes() []string {
	return []string{
		PermInventoryView,
		PermInventoryEdit,
		PermPricesView,
		PermPricesEdit,
		PermReservationView,
		PermReservationCreate,
		PermReservationCancel,
		PermReservationOperate,
		PermAgencyView,
		PermAgencyCommissions,
		PermAuditView,
	}
}

// RoleScopes maps each role to its granted permissions.
func RoleScopes() map[string][]string {
	frontDesk := []string{
		PermInventoryView,
		PermPricesView,
		PermReservationView,
		PermReservationCreate,
		PermReservationCancel,
		PermReservationOperate,
	}
	manager := append(append([]string{}, frontDesk...),
		PermInventoryEdit,
		PermPricesEdit,
		PermAgencyView,
		PermAuditView,
	)
	return map[string][]string{
		RoleSuperAdmin:      CoreScopes(),
		RoleOrgAdmin:        CoreScopes(),
		RolePropertyManager: manager,
		RoleFrontDesk:       frontDesk,
		RoleAgent:           {PermInventoryView, PermPricesView, PermReservationView, PermReservationCreate, PermAgencyView},
		RoleSystem:          {PermPricesView, PermPricesEdit, PermInventoryView},
	}
}

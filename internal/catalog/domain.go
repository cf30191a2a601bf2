package catalog

import "github.com/innkeep/innkeep/internal/shared"

// Property is a bookable hotel owned by one organization.
type Property struct {
	ID             int64            `json:"id"`
	OrganizationID int64            `json:"organization_id"`
	Code           string           `json:"code"`
	Name           string           `json:"name"`
	Status         shared.Lifecycle `json:"status"`
}

// RoomType belongs to a property.
type RoomType struct {
	ID         int64            `json:"id"`
	PropertyID int64            `json:"property_id"`
	Code       string           `json:"code"`
	Name       string           `json:"name"`
	IsBookable bool             `json:"is_bookable"`
	Status     shared.Lifecycle `json:"status"`
}

// RatePlan prices room types of a property. A nil RoomTypeID applies to every room type.
type RatePlan struct {
	ID         int64            `json:"id"`
	PropertyID int64            `json:"property_id"`
	RoomTypeID *int64           `json:"room_type_id,omitempty"`
	Code       string           `json:"code"`
	Name       string           `json:"name"`
	Status     shared.Lifecycle `json:"status"`
}

// AppliesTo reports whether the plan can price roomTypeID.
func (p RatePlan) AppliesTo(roomTypeID int64) bool {
	return p.RoomTypeID == nil || *p.RoomTypeID == roomTypeID
}

// Target is a resolved property, room type and rate plan triple.
type Target struct {
	Property Property `json:"property"`
	RoomType RoomType `json:"room_type"`
	RatePlan RatePlan `json:"rate_plan"`
}

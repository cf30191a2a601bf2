package shared

import "fmt"

// AvailabilityVersionKey builds the redis key holding the calendar cache
// version of one property + room type.
func AvailabilityVersionKey(propertyID, roomTypeID int64) string {
	return fmt.Sprintf("inventory:%d:%d:version", propertyID, roomTypeID)
}

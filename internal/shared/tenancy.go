package shared

import "context"

// PropertyGuard verifies that an actor may touch a property.
type PropertyGuard interface {
	AuthorizeProperty(ctx context.Context, actor Actor, propertyID int64) error
}

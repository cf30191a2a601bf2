package shared

// Lifecycle is the tombstone state shared by catalog entities.
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "active"
	LifecycleInactive Lifecycle = "inactive"
	LifecycleDeleted  Lifecycle = "deleted"
)

// Live reports whether the entity can take part in new bookings.
func (l Lifecycle) Live() bool {
	return l == LifecycleActive
}

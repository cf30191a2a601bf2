package shared

import "context"

// Role names recognised by the booking core.
const (
	RoleSuperAdmin      = "super_admin"
	RoleOrgAdmin        = "org_admin"
	RolePropertyManager = "property_manager"
	RoleFrontDesk       = "front_desk"
	RoleAgent           = "agent"
	RoleSystem          = "system"
)

// Actor is the identity attributed to an operation. Authentication happens
// upstream; the core only trusts and records it.
type Actor struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Role           string `json:"role"`
}

// IsZero reports whether no identity was supplied.
func (a Actor) IsZero() bool {
	return a.ID == 0 && a.OrganizationID == 0 && a.Role == ""
}

// RequestMeta carries client details recorded in the audit trail.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

type actorContextKey struct{}

type requestMetaContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// ContextWithRequestMeta stores request metadata in context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaContextKey{}, meta)
}

// RequestMetaFromContext extracts request metadata from context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaContextKey{}).(RequestMeta)
	return meta
}

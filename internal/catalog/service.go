package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/innkeep/innkeep/internal/shared"
)

// RepositoryPort abstracts catalog reads.
type RepositoryPort interface {
	GetProperty(ctx context.Context, id int64) (Property, error)
	GetRoomType(ctx context.Context, id int64) (RoomType, error)
	GetRatePlan(ctx context.Context, id int64) (RatePlan, error)
}

// Service answers the existence and bookability questions of the booking core.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ResolveBookable loads the triple and checks it can take a new booking for orgID.
// Rows of another organization are reported as not found.
func (s *Service) ResolveBookable(ctx context.Context, orgID, propertyID, roomTypeID, ratePlanID int64) (Target, error) {
	property, err := s.property(ctx, orgID, propertyID)
	if err != nil {
		return Target{}, err
	}
	roomType, err := s.repo.GetRoomType(ctx, roomTypeID)
	if err != nil {
		return Target{}, notFound(err, "room type", roomTypeID)
	}
	if roomType.PropertyID != property.ID {
		return Target{}, fmt.Errorf("%w: room type %d", shared.ErrNotFound, roomTypeID)
	}
	ratePlan, err := s.repo.GetRatePlan(ctx, ratePlanID)
	if err != nil {
		return Target{}, notFound(err, "rate plan", ratePlanID)
	}
	if ratePlan.PropertyID != property.ID {
		return Target{}, fmt.Errorf("%w: rate plan %d", shared.ErrNotFound, ratePlanID)
	}

	switch {
	case !property.Status.Live():
		return Target{}, fmt.Errorf("%w: property %d is not active", shared.ErrValidation, property.ID)
	case !roomType.Status.Live() || !roomType.IsBookable:
		return Target{}, fmt.Errorf("%w: room type %d is not bookable", shared.ErrValidation, roomType.ID)
	case !ratePlan.Status.Live():
		return Target{}, fmt.Errorf("%w: rate plan %d is not active", shared.ErrValidation, ratePlan.ID)
	case !ratePlan.AppliesTo(roomType.ID):
		return Target{}, fmt.Errorf("%w: rate plan %d does not apply to room type %d", shared.ErrValidation, ratePlan.ID, roomType.ID)
	}
	return Target{Property: property, RoomType: roomType, RatePlan: ratePlan}, nil
}

// AuthorizeProperty hides properties of other organizations. Super admins see all.
func (s *Service) AuthorizeProperty(ctx context.Context, actor shared.Actor, propertyID int64) error {
	if propertyID <= 0 {
		return fmt.Errorf("%w: property_id required", shared.ErrValidation)
	}
	if actor.Role == shared.RoleSuperAdmin {
		return nil
	}
	_, err := s.property(ctx, actor.OrganizationID, propertyID)
	return err
}

func (s *Service) property(ctx context.Context, orgID, propertyID int64) (Property, error) {
	property, err := s.repo.GetProperty(ctx, propertyID)
	if err != nil {
		return Property{}, notFound(err, "property", propertyID)
	}
	if property.OrganizationID != orgID || property.Status == shared.LifecycleDeleted {
		return Property{}, fmt.Errorf("%w: property %d", shared.ErrNotFound, propertyID)
	}
	return property, nil
}

func notFound(err error, entity string, id int64) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s %d", shared.ErrNotFound, entity, id)
	}
	return fmt.Errorf("catalog: load %s: %w", entity, err)
}

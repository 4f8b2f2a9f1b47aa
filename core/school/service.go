package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/account"
)

var (
	// errors
	ErrNotFound    = errors.New("school not found")
	ErrEmailExists = errors.New("a school with this email already exists")
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckEmailUniqueness(ctx context.Context, email string, exclSchools ...School) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclSchools...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Create registers a new school. Admin only.
func (svc *Service) Create(ctx context.Context, actor account.Actor, ns NewSchool) (School, error) {
	if !actor.IsAdmin() {
		return School{}, core.ErrPermissionDenied
	}

	now := time.Now().UTC()
	sch := School{
		Name:          ns.Name,
		Email:         ns.Email,
		Phone:         ns.Phone,
		Address:       ns.Address,
		PrincipalName: ns.PrincipalName,
		Status:        ns.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateSchool(ctx, sch)
}

// GetByID returns a school; a school actor may only read itself.
func (svc *Service) GetByID(ctx context.Context, actor account.Actor, id string) (School, error) {
	if actor.IsSchool() && actor.SchoolID != id {
		return School{}, ErrNotFound
	}
	return svc.repo.GetSchoolByID(ctx, id)
}

// Filter lists schools. Admin only; school actors get their own school back.
func (svc *Service) Filter(ctx context.Context, actor account.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]School, error) {
	if actor.IsSchool() {
		sch, err := svc.repo.GetSchoolByID(ctx, actor.SchoolID)
		if err != nil {
			return nil, err
		}
		return []School{sch}, nil
	}
	if !actor.IsAdmin() {
		return nil, core.ErrPermissionDenied
	}
	return svc.repo.FilterSchools(ctx, *filter, ordering)
}

// Update modifies a school. Admin only.
func (svc *Service) Update(ctx context.Context, actor account.Actor, id string, us UpdateSchool) (School, error) {
	if !actor.IsAdmin() {
		return School{}, core.ErrPermissionDenied
	}
	sch := School{
		ID:            id,
		Name:          us.Name,
		Email:         us.Email,
		Phone:         us.Phone,
		Address:       us.Address,
		PrincipalName: us.PrincipalName,
		Status:        us.Status,
		UpdatedAt:     time.Now().UTC(),
	}
	return svc.repo.UpdateSchool(ctx, sch)
}

// Delete removes schools. Admin only. Students and applications referencing
// the school are cascaded by the storage layer.
func (svc *Service) Delete(ctx context.Context, actor account.Actor, ids ...string) error {
	if !actor.IsAdmin() {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteSchoolsByID(ctx, ids...)
}

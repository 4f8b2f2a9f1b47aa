package school

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/skoolpay/skoolpay/core"
)

// Statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// School is one tenant institution on the platform.
type School struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	PrincipalName string    `json:"principal_name"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (s *School) IsActive() bool { return s.Status == StatusActive }

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedSchools ...School) error
		CreateSchool(ctx context.Context, sch School) (School, error)
		GetSchoolByID(ctx context.Context, id string) (School, error)
		// FilterSchools applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of School.Name, School.Email or School.Address.
		FilterSchools(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]School, error)
		UpdateSchool(ctx context.Context, sch School) (School, error)
		DeleteSchoolsByID(ctx context.Context, ids ...string) error
	}

	QueryFilter struct {
		Search string `query:"search"`
		Status string `query:"status"`
	}
)

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// NewSchool contains information needed to register a new School.
type NewSchool struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"omitempty,min=7"`
	Address       string `json:"address" validate:"required"`
	PrincipalName string `json:"principal_name" validate:"required"`
	Status        string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (ns *NewSchool) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Address = core.CleanString(ns.Address)
	ns.PrincipalName = core.CleanString(ns.PrincipalName)
	if ns.Status == "" {
		ns.Status = StatusActive
	}

	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(ctx, ns.Email)
}

// UpdateSchool defines what information may be provided to modify an existing School.
type UpdateSchool struct {
	Name          string `json:"name"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	PrincipalName string `json:"principal_name"`
	Status        string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (us *UpdateSchool) Validate(ctx context.Context, origSch School, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = origSch.Name
	}
	if email := core.CleanString(us.Email, true /* lower */); email != "" {
		us.Email = email
	} else {
		us.Email = origSch.Email
	}
	if us.Status == "" {
		us.Status = origSch.Status
	}

	if err := validate.Struct(us); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(ctx, us.Email, origSch)
}

package student

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

// Student belongs to exactly one school and at most one guardian.
type Student struct {
	ID         string    `json:"id"`
	SchoolID   string    `json:"school_id"`
	GuardianID string    `json:"guardian_id,omitempty"`
	Name       string    `json:"name"`
	Class      string    `json:"class"`
	RollNumber string    `json:"roll_number"`
	FeeAmount  int64     `json:"fee_amount"` // annual fee, whole rupees
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

func (s *Student) IsActive() bool { return s.Status == StatusActive }

type (
	Repository interface {
		// CheckRollNumberUniqueness enforces roll-number uniqueness within one school.
		CheckRollNumberUniqueness(ctx context.Context, schoolID, rollNumber string, excludedStudents ...Student) error
		CreateStudent(ctx context.Context, std Student) (Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		// FilterStudents applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Student.Name, Student.Class or Student.RollNumber.
		FilterStudents(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, std Student) (Student, error)
		DeleteStudentsByID(ctx context.Context, ids ...string) error
	}

	QueryFilter struct {
		Search     string `query:"search"`
		SchoolID   string `query:"school_id"`
		GuardianID string `query:"guardian_id"`
		Class      string `query:"class"`
		Status     string `query:"status"`
	}
)

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Class = core.CleanString(qf.Class)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// NewStudent contains information needed to enroll a new Student.
// Parent details are optional; when provided, a guardian account is found by
// email or provisioned.
type NewStudent struct {
	SchoolID   string `json:"school_id"`
	Name       string `json:"name" validate:"required"`
	Class      string `json:"class" validate:"required"`
	RollNumber string `json:"roll_number" validate:"required,alphanum_"`
	FeeAmount  int64  `json:"fee_amount" validate:"required,gt=0"`
	Status     string `json:"status" validate:"omitempty,oneof=active inactive"`

	ParentName  string `json:"parent_name" validate:"required_with=ParentEmail"`
	ParentEmail string `json:"parent_email" validate:"omitempty,email"`
	ParentPhone string `json:"parent_phone"`
	ParentCNIC  string `json:"parent_cnic"`
}

func (ns *NewStudent) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Class = core.CleanString(ns.Class)
	ns.RollNumber = core.CleanString(ns.RollNumber)
	ns.ParentEmail = core.CleanString(ns.ParentEmail, true /* lower */)
	if ns.Status == "" {
		ns.Status = StatusActive
	}

	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckRollNumberUniqueness(ctx, ns.SchoolID, ns.RollNumber)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
type UpdateStudent struct {
	Name       string `json:"name"`
	Class      string `json:"class"`
	RollNumber string `json:"roll_number" validate:"omitempty,alphanum_"`
	FeeAmount  *int64 `json:"fee_amount" validate:"omitempty,gt=0"`
	Status     string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (us *UpdateStudent) Validate(ctx context.Context, origStd Student, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = origStd.Name
	}
	if class := core.CleanString(us.Class); class != "" {
		us.Class = class
	} else {
		us.Class = origStd.Class
	}
	if roll := core.CleanString(us.RollNumber); roll != "" {
		us.RollNumber = roll
	} else {
		us.RollNumber = origStd.RollNumber
	}
	if us.Status == "" {
		us.Status = origStd.Status
	}

	if err := validate.Struct(us); err != nil {
		return err
	}
	return svc.CheckRollNumberUniqueness(ctx, origStd.SchoolID, us.RollNumber, origStd)
}

package student

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/account"
)

var (
	// errors
	ErrNotFound       = errors.New("student not found")
	ErrRollNumTaken   = errors.New("this roll number is already taken in this school")
	ErrUnknownSchool  = errors.New("unknown school")
	ErrInactiveSchool = errors.New("school is inactive")
)

// SchoolChecker is what the service needs from the school domain: existence
// and status of the owning school.
type SchoolChecker interface {
	IsSchoolActive(ctx context.Context, id string) (bool, error)
}

type Service struct {
	repo       Repository
	accountSvc *account.Service
	schools    SchoolChecker
}

func NewService(repo Repository, accountSvc *account.Service, schools SchoolChecker) *Service {
	return &Service{repo: repo, accountSvc: accountSvc, schools: schools}
}

func (svc *Service) CheckRollNumberUniqueness(ctx context.Context, schoolID, rollNumber string, exclStudents ...Student) error {
	if err := svc.repo.CheckRollNumberUniqueness(ctx, schoolID, rollNumber, exclStudents...); err != nil {
		if err == ErrRollNumTaken {
			return core.NewValidationError(err, core.FieldError{Field: "roll_number", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Create enrolls a student. A school actor enrolls into its own school; the
// admin must name a school in the input. When parent details are present a
// guardian account is found by email or provisioned.
func (svc *Service) Create(ctx context.Context, actor account.Actor, ns NewStudent) (Student, error) {
	switch {
	case actor.IsSchool():
		ns.SchoolID = actor.SchoolID
	case actor.IsAdmin():
		if ns.SchoolID == "" {
			return Student{}, core.NewValidationError(nil,
				core.FieldError{Field: "school_id", Error: "school_id is required"})
		}
	default:
		return Student{}, core.ErrPermissionDenied
	}

	active, err := svc.schools.IsSchoolActive(ctx, ns.SchoolID)
	if err != nil {
		return Student{}, err
	}
	if !active {
		return Student{}, core.NewPreconditionError(ErrInactiveSchool)
	}

	now := time.Now().UTC()
	std := Student{
		SchoolID:   ns.SchoolID,
		Name:       ns.Name,
		Class:      ns.Class,
		RollNumber: ns.RollNumber,
		FeeAmount:  ns.FeeAmount,
		Status:     ns.Status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if ns.ParentEmail != "" {
		guardian, err := svc.accountSvc.EnsureParent(ctx, ns.ParentName, ns.ParentEmail, ns.ParentPhone, ns.ParentCNIC)
		if err != nil {
			return Student{}, err
		}
		std.GuardianID = guardian.ID
	}
	return svc.repo.CreateStudent(ctx, std)
}

// GetByID returns a student scoped to the actor: schools see their own
// students, parents their own children.
func (svc *Service) GetByID(ctx context.Context, actor account.Actor, id string) (Student, error) {
	std, err := svc.repo.GetStudentByID(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if actor.IsSchool() && std.SchoolID != actor.SchoolID {
		return Student{}, ErrNotFound
	}
	if actor.IsParent() && std.GuardianID != actor.ID {
		return Student{}, ErrNotFound
	}
	return std, nil
}

func (svc *Service) Filter(ctx context.Context, actor account.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	switch {
	case actor.IsSchool():
		filter.SchoolID = actor.SchoolID
	case actor.IsParent():
		filter.GuardianID = actor.ID
	case !actor.IsAdmin():
		return nil, core.ErrPermissionDenied
	}
	return svc.repo.FilterStudents(ctx, *filter, ordering)
}

// Update modifies a student. Schools may only touch their own students.
func (svc *Service) Update(ctx context.Context, actor account.Actor, id string, us UpdateStudent) (Student, error) {
	if actor.IsParent() {
		return Student{}, core.ErrPermissionDenied
	}
	orig, err := svc.GetByID(ctx, actor, id)
	if err != nil {
		return Student{}, err
	}

	std := Student{
		ID:         orig.ID,
		SchoolID:   orig.SchoolID,
		GuardianID: orig.GuardianID,
		Name:       us.Name,
		Class:      us.Class,
		RollNumber: us.RollNumber,
		FeeAmount:  orig.FeeAmount,
		Status:     us.Status,
		UpdatedAt:  time.Now().UTC(),
	}
	if us.FeeAmount != nil {
		std.FeeAmount = *us.FeeAmount
	}
	return svc.repo.UpdateStudent(ctx, std)
}

// AssignGuardian links (or provisions) a parent account to a student.
func (svc *Service) AssignGuardian(ctx context.Context, actor account.Actor, id, name, email, phone, cnic string) (Student, error) {
	if actor.IsParent() {
		return Student{}, core.ErrPermissionDenied
	}
	std, err := svc.GetByID(ctx, actor, id)
	if err != nil {
		return Student{}, err
	}

	guardian, err := svc.accountSvc.EnsureParent(ctx, name, email, phone, cnic)
	if err != nil {
		return Student{}, err
	}
	std.GuardianID = guardian.ID
	std.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, std)
}

func (svc *Service) Delete(ctx context.Context, actor account.Actor, ids ...string) error {
	if actor.IsParent() {
		return core.ErrPermissionDenied
	}
	if actor.IsSchool() {
		// scope check before bulk delete
		for _, id := range ids {
			if _, err := svc.GetByID(ctx, actor, id); err != nil {
				return err
			}
		}
	}
	return svc.repo.DeleteStudentsByID(ctx, ids...)
}

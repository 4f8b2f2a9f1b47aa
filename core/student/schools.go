package student

import (
	"context"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/school"
)

// SchoolLookup adapts the school repository to what enrollment needs to know
// about the owning school.
type SchoolLookup struct {
	repo school.Repository
}

var _ SchoolChecker = (*SchoolLookup)(nil)

func NewSchoolLookup(repo school.Repository) *SchoolLookup {
	return &SchoolLookup{repo: repo}
}

func (l *SchoolLookup) IsSchoolActive(ctx context.Context, id string) (bool, error) {
	sch, err := l.repo.GetSchoolByID(ctx, id)
	if err != nil {
		if err == school.ErrNotFound {
			return false, core.NewValidationError(ErrUnknownSchool,
				core.FieldError{Field: "school_id", Error: ErrUnknownSchool.Error()})
		}
		return false, err
	}
	return sch.IsActive(), nil
}

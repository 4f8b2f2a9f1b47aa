package student

import (
	"context"

	"github.com/skoolpay/skoolpay/core/plan"
)

// Directory adapts the student repository to what the plan engine needs to
// know about a student.
type Directory struct {
	repo Repository
}

var _ plan.StudentDirectory = (*Directory)(nil)

func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) GetStudent(ctx context.Context, id string) (plan.StudentInfo, error) {
	std, err := d.repo.GetStudentByID(ctx, id)
	if err != nil {
		return plan.StudentInfo{}, err
	}
	return plan.StudentInfo{
		ID:         std.ID,
		SchoolID:   std.SchoolID,
		GuardianID: std.GuardianID,
		FeeAmount:  std.FeeAmount,
		Name:       std.Name,
		Active:     std.IsActive(),
	}, nil
}

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/skoolpay/skoolpay/core/account"
	"github.com/skoolpay/skoolpay/core/school"
	"github.com/skoolpay/skoolpay/core/student"
)

func CreateUser(
	t *testing.T,
	repo account.Repository,
	name, email, pwd, role, schoolID string,
	isActive bool,
	createdAt ...time.Time,
) account.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := account.User{
		Name:      name,
		Email:     email,
		Role:      role,
		SchoolID:  schoolID,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateSchool(t *testing.T, repo school.Repository, name, email string, active bool) school.School {
	t.Helper()

	status := school.StatusActive
	if !active {
		status = school.StatusInactive
	}
	now := time.Now().UTC()
	sch, err := repo.CreateSchool(context.Background(), school.School{
		Name:      name,
		Email:     email,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return sch
}

func CreateStudent(
	t *testing.T,
	repo student.Repository,
	schoolID, guardianID, name, class, rollNumber string,
	feeAmount int64,
) student.Student {
	t.Helper()

	now := time.Now().UTC()
	std, err := repo.CreateStudent(context.Background(), student.Student{
		SchoolID:   schoolID,
		GuardianID: guardianID,
		Name:       name,
		Class:      class,
		RollNumber: rollNumber,
		FeeAmount:  feeAmount,
		Status:     student.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}

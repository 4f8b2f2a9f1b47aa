package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) query() []student.Student {
	students := make([]student.Student, 0, len(repo.db.students))
	for _, s := range repo.db.students {
		students = append(students, *s)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].CreatedAt.Before(students[j].CreatedAt) })
	return students
}

func (repo *studentRepository) CheckRollNumberUniqueness(ctx context.Context, schoolID, rollNumber string, excludedStudents ...student.Student) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, std := range repo.query() {
		if std.SchoolID != schoolID || std.RollNumber != rollNumber {
			continue
		}
		var excluded bool
		for _, ex := range excludedStudents {
			if ex.ID == std.ID {
				excluded = true
				break
			}
		}
		if !excluded {
			return student.ErrRollNumTaken
		}
	}
	return nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if std.ID == "" {
		std.ID = uuid.New().String()
	}
	repo.db.students[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if std, ok := repo.db.students[id]; ok {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) FilterStudents(ctx context.Context, filter student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]student.Student, 0)
	for _, std := range repo.query() {
		if filter.Search != "" && !(contains(std.Name, filter.Search) || contains(std.Class, filter.Search) || contains(std.RollNumber, filter.Search)) {
			continue
		}
		if filter.SchoolID != "" && std.SchoolID != filter.SchoolID {
			continue
		}
		if filter.GuardianID != "" && std.GuardianID != filter.GuardianID {
			continue
		}
		if filter.Class != "" && std.Class != filter.Class {
			continue
		}
		if filter.Status != "" && std.Status != filter.Status {
			continue
		}
		students = append(students, std)
	}
	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	origStd, ok := repo.db.students[std.ID]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	origStd.GuardianID = std.GuardianID
	origStd.Name = std.Name
	origStd.Class = std.Class
	origStd.RollNumber = std.RollNumber
	origStd.FeeAmount = std.FeeAmount
	origStd.Status = std.Status
	origStd.UpdatedAt = std.UpdatedAt
	return *origStd, nil
}

func (repo *studentRepository) DeleteStudentsByID(ctx context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.students, id)
	}
	return nil
}

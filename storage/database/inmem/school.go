package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) query() []school.School {
	schools := make([]school.School, 0, len(repo.db.schools))
	for _, s := range repo.db.schools {
		schools = append(schools, *s)
	}
	sort.Slice(schools, func(i, j int) bool { return schools[i].CreatedAt.Before(schools[j].CreatedAt) })
	return schools
}

func (repo *schoolRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedSchools ...school.School) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, sch := range repo.query() {
		if sch.Email != email {
			continue
		}
		var excluded bool
		for _, ex := range excludedSchools {
			if ex.ID == sch.ID {
				excluded = true
				break
			}
		}
		if !excluded {
			return school.ErrEmailExists
		}
	}
	return nil
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School) (school.School, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if sch.ID == "" {
		sch.ID = uuid.New().String()
	}
	repo.db.schools[sch.ID] = &sch
	return sch, nil
}

func (repo *schoolRepository) GetSchoolByID(ctx context.Context, id string) (school.School, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sch, ok := repo.db.schools[id]; ok {
		return *sch, nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) FilterSchools(ctx context.Context, filter school.QueryFilter, ordering []core.DBOrdering) ([]school.School, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	schools := make([]school.School, 0)
	for _, sch := range repo.query() {
		if filter.Search != "" && !(contains(sch.Name, filter.Search) || contains(sch.Email, filter.Search) || contains(sch.Address, filter.Search)) {
			continue
		}
		if filter.Status != "" && sch.Status != filter.Status {
			continue
		}
		schools = append(schools, sch)
	}
	return schools, nil
}

// UpdateSchool only saves set fields.
func (repo *schoolRepository) UpdateSchool(ctx context.Context, sch school.School) (school.School, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	origSch, ok := repo.db.schools[sch.ID]
	if !ok {
		return school.School{}, school.ErrNotFound
	}
	if sch.Name != "" {
		origSch.Name = sch.Name
	}
	if sch.Email != "" {
		origSch.Email = sch.Email
	}
	if sch.Phone != "" {
		origSch.Phone = sch.Phone
	}
	if sch.Address != "" {
		origSch.Address = sch.Address
	}
	if sch.PrincipalName != "" {
		origSch.PrincipalName = sch.PrincipalName
	}
	if sch.Status != "" {
		origSch.Status = sch.Status
	}
	if !sch.UpdatedAt.IsZero() {
		origSch.UpdatedAt = sch.UpdatedAt
	}
	return *origSch, nil
}

func (repo *schoolRepository) DeleteSchoolsByID(ctx context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.schools, id)
		// cascade like the DB does
		for sid, std := range repo.db.students {
			if std.SchoolID == id {
				delete(repo.db.students, sid)
			}
		}
	}
	return nil
}

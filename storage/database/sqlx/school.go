package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/school"
)

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

type schoolRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Email         string    `db:"email"`
	Phone         string    `db:"phone"`
	Address       string    `db:"address"`
	PrincipalName string    `db:"principal_name"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r schoolRow) school() school.School {
	return school.School(r)
}

func (repo *schoolRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedSchools ...school.School) error {
	exclIDs := make([]string, 0, len(excludedSchools))
	for _, sch := range excludedSchools {
		exclIDs = append(exclIDs, sch.ID)
	}

	query := `SELECT EXISTS (SELECT 1 FROM school WHERE email = ?)`
	args := []interface{}{email}
	if len(exclIDs) > 0 {
		query = `SELECT EXISTS (SELECT 1 FROM school WHERE email = ? AND id NOT IN (?))`
		var err error
		if query, args, err = sqlx.In(query, email, exclIDs); err != nil {
			return errors.Wrap(err, "building query")
		}
	}

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return school.ErrEmailExists
	}
	return nil
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School) (school.School, error) {
	if sch.ID == "" {
		sch.ID = uuid.New().String()
	}
	const query = `
		INSERT INTO school (id, name, email, phone, address, principal_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.db.ExecContext(ctx, query,
		sch.ID, sch.Name, sch.Email, sch.Phone, sch.Address, sch.PrincipalName, sch.Status, sch.CreatedAt, sch.UpdatedAt)
	if err != nil {
		return school.School{}, errors.Wrap(err, "creating school")
	}
	return sch, nil
}

func (repo *schoolRepository) GetSchoolByID(ctx context.Context, id string) (school.School, error) {
	var row schoolRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM school WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return school.School{}, school.ErrNotFound
		}
		return school.School{}, errors.Wrap(err, "getting school")
	}
	return row.school(), nil
}

func (repo *schoolRepository) FilterSchools(ctx context.Context, filter school.QueryFilter, ordering []core.DBOrdering) ([]school.School, error) {
	query := `SELECT * FROM school WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "?"
	}

	if filter.Search != "" {
		p := searchPattern(filter.Search)
		query += ` AND (name ILIKE ` + arg(p) + ` OR email ILIKE ` + arg(p) + ` OR address ILIKE ` + arg(p) + `)`
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(filter.Status)
	}
	query += orderBy(ordering)

	var rows []schoolRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering schools")
	}
	schools := make([]school.School, 0, len(rows))
	for _, row := range rows {
		schools = append(schools, row.school())
	}
	return schools, nil
}

// UpdateSchool only saves set fields.
func (repo *schoolRepository) UpdateSchool(ctx context.Context, sch school.School) (school.School, error) {
	query := `UPDATE school SET id = id`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "?"
	}

	if sch.Name != "" {
		query += `, name = ` + arg(sch.Name)
	}
	if sch.Email != "" {
		query += `, email = ` + arg(sch.Email)
	}
	if sch.Phone != "" {
		query += `, phone = ` + arg(sch.Phone)
	}
	if sch.Address != "" {
		query += `, address = ` + arg(sch.Address)
	}
	if sch.PrincipalName != "" {
		query += `, principal_name = ` + arg(sch.PrincipalName)
	}
	if sch.Status != "" {
		query += `, status = ` + arg(sch.Status)
	}
	if !sch.UpdatedAt.IsZero() {
		query += `, updated_at = ` + arg(sch.UpdatedAt)
	}
	query += ` WHERE id = ` + arg(sch.ID)

	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	if err != nil {
		return school.School{}, errors.Wrap(err, "updating school")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.School{}, school.ErrNotFound
	}
	return repo.GetSchoolByID(ctx, sch.ID)
}

func (repo *schoolRepository) DeleteSchoolsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM school WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting schools")
	}
	return nil
}

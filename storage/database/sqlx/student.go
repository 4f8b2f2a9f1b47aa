package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/student"
)

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

type studentRow struct {
	ID         string         `db:"id"`
	SchoolID   string         `db:"school_id"`
	GuardianID sql.NullString `db:"guardian_id"`
	Name       string         `db:"name"`
	Class      string         `db:"class"`
	RollNumber string         `db:"roll_number"`
	FeeAmount  int64          `db:"fee_amount"`
	Status     string         `db:"status"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r studentRow) student() student.Student {
	return student.Student{
		ID:         r.ID,
		SchoolID:   r.SchoolID,
		GuardianID: r.GuardianID.String,
		Name:       r.Name,
		Class:      r.Class,
		RollNumber: r.RollNumber,
		FeeAmount:  r.FeeAmount,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (repo *studentRepository) CheckRollNumberUniqueness(ctx context.Context, schoolID, rollNumber string, excludedStudents ...student.Student) error {
	exclIDs := make([]string, 0, len(excludedStudents))
	for _, std := range excludedStudents {
		exclIDs = append(exclIDs, std.ID)
	}

	query := `SELECT EXISTS (SELECT 1 FROM student WHERE school_id = ? AND roll_number = ?)`
	args := []interface{}{schoolID, rollNumber}
	if len(exclIDs) > 0 {
		query = `SELECT EXISTS (SELECT 1 FROM student WHERE school_id = ? AND roll_number = ? AND id NOT IN (?))`
		var err error
		if query, args, err = sqlx.In(query, schoolID, rollNumber, exclIDs); err != nil {
			return errors.Wrap(err, "building query")
		}
	}

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking roll number uniqueness")
	}
	if exists {
		return student.ErrRollNumTaken
	}
	return nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	if std.ID == "" {
		std.ID = uuid.New().String()
	}
	const query = `
		INSERT INTO student (id, school_id, guardian_id, name, class, roll_number, fee_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := repo.db.ExecContext(ctx, query,
		std.ID, std.SchoolID, nullStr(std.GuardianID), std.Name, std.Class, std.RollNumber,
		std.FeeAmount, std.Status, std.CreatedAt, std.UpdatedAt)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "creating student")
	}
	return std, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM student WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "getting student")
	}
	return row.student(), nil
}

func (repo *studentRepository) FilterStudents(ctx context.Context, filter student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	query := `SELECT * FROM student WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "?"
	}

	if filter.Search != "" {
		p := searchPattern(filter.Search)
		query += ` AND (name ILIKE ` + arg(p) + ` OR class ILIKE ` + arg(p) + ` OR roll_number ILIKE ` + arg(p) + `)`
	}
	if filter.SchoolID != "" {
		query += ` AND school_id = ` + arg(filter.SchoolID)
	}
	if filter.GuardianID != "" {
		query += ` AND guardian_id = ` + arg(filter.GuardianID)
	}
	if filter.Class != "" {
		query += ` AND class = ` + arg(filter.Class)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(filter.Status)
	}
	query += orderBy(ordering)

	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	const query = `
		UPDATE student
		SET guardian_id = $1, name = $2, class = $3, roll_number = $4, fee_amount = $5, status = $6, updated_at = $7
		WHERE id = $8`
	res, err := repo.db.ExecContext(ctx, query,
		nullStr(std.GuardianID), std.Name, std.Class, std.RollNumber, std.FeeAmount, std.Status, std.UpdatedAt, std.ID)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return repo.GetStudentByID(ctx, std.ID)
}

func (repo *studentRepository) DeleteStudentsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM student WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return nil
}

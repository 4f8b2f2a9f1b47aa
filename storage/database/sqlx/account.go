package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/account"
)

type accountRepository struct {
	db *sqlx.DB
}

var _ account.Repository = (*accountRepository)(nil)

func NewAccountRepository(db *sqlx.DB) *accountRepository {
	return &accountRepository{db: db}
}

type userRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Email         string         `db:"email"`
	Phone         string         `db:"phone"`
	CNIC          string         `db:"cnic"`
	Role          string         `db:"role"`
	SchoolID      sql.NullString `db:"school_id"`
	MonthlyIncome int64          `db:"monthly_income"`
	IsActive      bool           `db:"is_active"`
	PasswordHash  []byte         `db:"password_hash"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	LastLogin     sql.NullTime   `db:"last_login"`
}

func (r userRow) user() account.User {
	usr := account.User{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		Phone:         r.Phone,
		CNIC:          r.CNIC,
		Role:          r.Role,
		SchoolID:      r.SchoolID.String,
		MonthlyIncome: r.MonthlyIncome,
		PasswordHash:  r.PasswordHash,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	usr.SetActive(r.IsActive)
	if r.LastLogin.Valid {
		usr.LastLogin = r.LastLogin.Time
	}
	return usr
}

func nullStr(s string) sql.NullString  { return sql.NullString{String: s, Valid: s != ""} }
func nullTime(t time.Time) sql.NullTime { return sql.NullTime{Time: t, Valid: !t.IsZero()} }

func (repo *accountRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...account.User) error {
	exclIDs := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		exclIDs = append(exclIDs, usr.ID)
	}

	query := `SELECT EXISTS (SELECT 1 FROM account WHERE email = ?)`
	args := []interface{}{email}
	if len(exclIDs) > 0 {
		query = `SELECT EXISTS (SELECT 1 FROM account WHERE email = ? AND id NOT IN (?))`
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
		return account.ErrEmailExists
	}
	return nil
}

func (repo *accountRepository) CreateUser(ctx context.Context, usr account.User) (account.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	const query = `
		INSERT INTO account (id, name, email, phone, cnic, role, school_id, monthly_income, is_active, password_hash, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := repo.db.ExecContext(ctx, query,
		usr.ID, usr.Name, usr.Email, usr.Phone, usr.CNIC, usr.Role, nullStr(usr.SchoolID),
		usr.MonthlyIncome, usr.Active(), usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt, nullTime(usr.LastLogin))
	if err != nil {
		return account.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *accountRepository) GetUser(ctx context.Context, filter account.GetFilter) (account.User, error) {
	query := `SELECT * FROM account WHERE id = $1`
	arg := filter.ID
	if filter.ID == "" {
		query = `SELECT * FROM account WHERE email = $1`
		arg = filter.Email
	}

	var row userRow
	if err := repo.db.GetContext(ctx, &row, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return account.User{}, account.ErrNotFound
		}
		return account.User{}, errors.Wrap(err, "getting user")
	}
	return row.user(), nil
}

func (repo *accountRepository) FilterUsers(ctx context.Context, filter account.QueryFilter, ordering []core.DBOrdering) ([]account.User, error) {
	query := `SELECT * FROM account WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "?"
	}

	if filter.Search != "" {
		p := searchPattern(filter.Search)
		query += ` AND (name ILIKE ` + arg(p) + ` OR email ILIKE ` + arg(p) + ` OR phone ILIKE ` + arg(p) + `)`
	}
	if filter.Role != "" {
		query += ` AND role = ` + arg(filter.Role)
	}
	if filter.SchoolID != "" {
		query += ` AND school_id = ` + arg(filter.SchoolID)
	}
	if filter.IsActive != nil {
		query += ` AND is_active = ` + arg(*filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		query += ` AND created_at >= ` + arg(filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		query += ` AND created_at <= ` + arg(filter.CreatedTo)
	}
	query += orderBy(ordering)

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	users := make([]account.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

// UpdateUser only saves set fields.
func (repo *accountRepository) UpdateUser(ctx context.Context, usr account.User, isActive *bool) (account.User, error) {
	query := `UPDATE account SET id = id`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "?"
	}

	if usr.Name != "" {
		query += `, name = ` + arg(usr.Name)
	}
	if usr.Email != "" {
		query += `, email = ` + arg(usr.Email)
	}
	if usr.Phone != "" {
		query += `, phone = ` + arg(usr.Phone)
	}
	if usr.MonthlyIncome != 0 {
		query += `, monthly_income = ` + arg(usr.MonthlyIncome)
	}
	if usr.PasswordHash != nil {
		query += `, password_hash = ` + arg(usr.PasswordHash)
	}
	if isActive != nil {
		query += `, is_active = ` + arg(*isActive)
	}
	if !usr.LastLogin.IsZero() {
		query += `, last_login = ` + arg(usr.LastLogin)
	}
	if !usr.UpdatedAt.IsZero() {
		query += `, updated_at = ` + arg(usr.UpdatedAt)
	}
	query += ` WHERE id = ` + arg(usr.ID)

	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	if err != nil {
		return account.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return account.User{}, account.ErrNotFound
	}
	return repo.GetUser(ctx, account.GetFilter{ID: usr.ID})
}

func (repo *accountRepository) UpdateOrCreateUser(ctx context.Context, usr account.User) (account.User, error) {
	existing, err := repo.GetUser(ctx, account.GetFilter{Email: usr.Email})
	if err != nil {
		if err == account.ErrNotFound {
			return repo.CreateUser(ctx, usr)
		}
		return account.User{}, err
	}
	usr.ID = existing.ID
	return repo.UpdateUser(ctx, usr, usr.IsActive)
}

func (repo *accountRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM account WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

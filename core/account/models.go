package account

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/skoolpay/skoolpay/core"
)

// Roles
const (
	RoleAdmin  = "admin"
	RoleSchool = "school"
	RoleParent = "parent"
)

var AllRoles = []string{RoleAdmin, RoleSchool, RoleParent}

// User is any account on the platform: the administrator, a school staff
// account scoped to one school, or a parent (guardian) account.
type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone,omitempty"`
	CNIC          string     `json:"cnic,omitempty"`
	Role          string     `json:"role"`
	SchoolID      string     `json:"school_id,omitempty"`      // set iff Role == school
	MonthlyIncome int64      `json:"monthly_income,omitempty"` // self-reported, parents only
	IsActive      *bool      `json:"is_active"`
	PasswordHash  []byte     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"` // UTC
	UpdatedAt     time.Time  `json:"updated_at"` // UTC
	LastLogin     time.Time  `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) { u.IsActive = &active }

func (u *User) Active() bool { return u.IsActive != nil && *u.IsActive }

func (u *User) IsAdmin() bool  { return u.Role == RoleAdmin }
func (u *User) IsSchool() bool { return u.Role == RoleSchool }
func (u *User) IsParent() bool { return u.Role == RoleParent }

// Actor is the capability under which a core operation runs: who is calling
// and what scope they own. Every mutating operation authorizes against it.
type Actor struct {
	ID       string
	Role     string
	SchoolID string
}

func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }
func (a Actor) IsSchool() bool { return a.Role == RoleSchool }
func (a Actor) IsParent() bool { return a.Role == RoleParent }

func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, SchoolID: u.SchoolID}
}

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Email or User.Phone.
		FilterUsers(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	GetFilter struct {
		ID    string
		Email string
	}

	QueryFilter struct {
		Search      string    `query:"search"`
		Role        string    `query:"role"`
		SchoolID    string    `query:"school_id"`
		IsActive    *bool     `query:"is_active"`
		CreatedFrom time.Time `query:"created_from"`
		CreatedTo   time.Time `query:"created_to"`
	}
)

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.SchoolID == "" &&
		qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"omitempty,min=7"`
	CNIC            string `json:"cnic" validate:"omitempty,min=13"`
	Role            string `json:"role" validate:"required,role"`
	SchoolID        string `json:"school_id"`
	MonthlyIncome   int64  `json:"monthly_income" validate:"omitempty,gte=0"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Phone = core.CleanString(nu.Phone)
	nu.Role = core.CleanString(nu.Role, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string `json:"name"`
	Email           string `json:"email" validate:"omitempty,email"`
	Phone           string `json:"phone" validate:"omitempty,min=7"`
	MonthlyIncome   *int64 `json:"monthly_income" validate:"omitempty"`
	IsActive        *bool  `json:"is_active"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(ctx, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

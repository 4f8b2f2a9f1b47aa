package account

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
)

var (
	// errors
	ErrNotFound    = errors.New("account not found")
	ErrEmailExists = errors.New("an account with this email already exists")
)

type Service struct {
	repo    Repository
	mailSvc core.EmailService
	conf    *core.Config
}

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

func (svc *Service) CheckEmailUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:          nu.Name,
		Email:         nu.Email,
		Phone:         nu.Phone,
		CNIC:          nu.CNIC,
		Role:          nu.Role,
		SchoolID:      nu.SchoolID,
		MonthlyIncome: nu.MonthlyIncome,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Welcome to " + svc.conf.AppName,
		TemplateName: "welcome",
		TemplateData: struct{ Name string }{usr.Name},
	})
	return usr, nil
}

// Register self-registers a guardian account. Other roles are provisioned by
// an admin.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	if nu.Role != RoleParent {
		return User{}, core.NewValidationError(nil,
			core.FieldError{Field: "role", Error: "only parent accounts can self-register"})
	}
	nu.SchoolID = ""
	return svc.Create(ctx, nu)
}

// EnsureParent finds a parent account by email or provisions a new one.
// Used when a school enrolls a student with parent details; the generated
// password is random and unusable until the parent resets it.
func (svc *Service) EnsureParent(ctx context.Context, name, email, phone, cnic string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: email})
	if err == nil {
		if !usr.IsParent() {
			return User{}, core.NewValidationError(nil,
				core.FieldError{Field: "parent_email", Error: "email belongs to a non-parent account"})
		}
		return usr, nil
	}
	if err != ErrNotFound {
		return User{}, err
	}

	now := time.Now().UTC()
	usr = User{
		Name:      core.CleanString(name),
		Email:     email,
		Phone:     core.CleanString(phone),
		CNIC:      core.CleanString(cnic),
		Role:      RoleParent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	usr, err = svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your " + svc.conf.AppName + " parent account",
		TemplateName: "welcome",
		TemplateData: struct{ Name string }{usr.Name},
	})
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) Filter(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.FilterUsers(ctx, *filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Name:      uu.Name,
		Email:     uu.Email,
		Phone:     uu.Phone,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.MonthlyIncome != nil {
		usr.MonthlyIncome = *uu.MonthlyIncome
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, User{ID: usr.ID, Name: usr.Name, Email: usr.Email, LastLogin: usr.LastLogin}, nil)
}

func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.Active() {
		return ErrNotFound
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Name  string
			UID   string
			Token string
		}{usr.Name, EncodeUID(usr), makeToken(usr)},
	})
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}
	if err = verifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(err)
	}

	if err = usr.SetPassword(rp.Password); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr, nil)
	return errors.Wrap(err, "updating password")
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/account"
)

type accountRepository struct {
	db *DB
}

var _ account.Repository = (*accountRepository)(nil)

func NewAccountRepository(db *DB) *accountRepository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) query() []account.User {
	users := make([]account.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users
}

func (repo *accountRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...account.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.query() {
		if usr.Email == email && !userExcluded(usr, excludedUsers) {
			return account.ErrEmailExists
		}
	}
	return nil
}

func (repo *accountRepository) CreateUser(ctx context.Context, usr account.User) (account.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *accountRepository) GetUser(ctx context.Context, filter account.GetFilter) (account.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return *usr, nil
		}
		return account.User{}, account.ErrNotFound
	}
	for _, usr := range repo.query() {
		if usr.Email == filter.Email {
			return usr, nil
		}
	}
	return account.User{}, account.ErrNotFound
}

func (repo *accountRepository) FilterUsers(ctx context.Context, filter account.QueryFilter, ordering []core.DBOrdering) ([]account.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]account.User, 0)
	for _, usr := range repo.query() {
		if filter.Search != "" && !(contains(usr.Name, filter.Search) || contains(usr.Email, filter.Search) || contains(usr.Phone, filter.Search)) {
			continue
		}
		if filter.Role != "" && usr.Role != filter.Role {
			continue
		}
		if filter.SchoolID != "" && usr.SchoolID != filter.SchoolID {
			continue
		}
		if filter.IsActive != nil && usr.Active() != *filter.IsActive {
			continue
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		users = append(users, usr)
	}
	return users, nil
}

// UpdateUser only saves set fields.
func (repo *accountRepository) UpdateUser(ctx context.Context, usr account.User, isActive *bool) (account.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	origUsr, ok := repo.db.users[usr.ID]
	if !ok {
		return account.User{}, account.ErrNotFound
	}
	if usr.Name != "" {
		origUsr.Name = usr.Name
	}
	if usr.Email != "" {
		origUsr.Email = usr.Email
	}
	if usr.Phone != "" {
		origUsr.Phone = usr.Phone
	}
	if usr.MonthlyIncome != 0 {
		origUsr.MonthlyIncome = usr.MonthlyIncome
	}
	if usr.PasswordHash != nil {
		origUsr.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		origUsr.SetActive(*isActive)
	}
	if !usr.LastLogin.IsZero() {
		origUsr.LastLogin = usr.LastLogin
	}
	if !usr.UpdatedAt.IsZero() {
		origUsr.UpdatedAt = usr.UpdatedAt
	}
	return *origUsr, nil
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
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.users, id)
	}
	return nil
}

func userExcluded(usr account.User, excluded []account.User) bool {
	for _, ex := range excluded {
		if ex.ID == usr.ID {
			return true
		}
	}
	return false
}

func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

package main

import (
	"context"
	"time"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/account"
)

// createAdmin updates or creates an admin account.
func (cli *commandLine) createAdmin(name, email, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, account.GetFilter{Email: email})
	if err != nil {
		if err != account.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		usr = account.User{
			Name:      core.CleanString(name),
			Email:     email,
			CreatedAt: now,
		}
	}
	usr.Role = account.RoleAdmin
	usr.UpdatedAt = time.Now().UTC()
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr)
	return err
}

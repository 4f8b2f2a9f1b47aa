package main

import (
	"github.com/skoolpay/skoolpay/storage/database"
)

var migrationRunFunc = database.RunMigrationCommand // mockable

func (cli *commandLine) migrate(args []string) error {
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return migrationRunFunc(cli.db, args[0], arguments...)
}

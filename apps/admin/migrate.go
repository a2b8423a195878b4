package main

import (
	"errors"

	"github.com/trezcool/cheti/storage/database"
)

var (
	gooseRunFunc = database.RunMigrations // mockable

	errNoMigrations = errors.New("sqlite databases are migrated on startup")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.engine == database.EngineSQLite {
		return errNoMigrations
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(cli.db, args[0], arguments...)
}

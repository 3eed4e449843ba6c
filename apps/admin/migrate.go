package main

import (
	"database/sql"
	"errors"

	"github.com/trezcool/goose"

	appfs "github.com/trezcool/somesha/fs"
	"github.com/trezcool/somesha/storage/database"
)

var (
	// mockable
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		return goose.RunFS(command, db, appfs.FS, dir, args...)
	}

	errNoDatabase = errors.New("migrations need a SQL database")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.db, database.MigrationsDir, arguments...)
}

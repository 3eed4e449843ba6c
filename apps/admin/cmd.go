package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/school"
	"github.com/trezcool/somesha/core/student"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sql.DB // nil with the memory engine
	serverConf core.ServerConfig
	schools    *school.Service
	students   *student.Service
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                      - run a goose command on the database (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  addschool -name NAME [-slug SLUG] [-org ID] [-coordinator EMAIL] - create a school and its identity organization")
	fmt.Fprintln(cli.out, "  importstudents -school SLUG -file PATH [-batch ID]          - import a CSV roster into a school")
	fmt.Fprintln(cli.out, "  reconcile [-limit N]                                        - retry the identity sync of pending students")
	fmt.Fprintln(cli.out, "  token -user ID -email EMAIL [-org ID -role ROLE] [-admin]   - issue a session token (development)")
}

// stdoutIsTerminal reports whether reports should be rendered for humans.
func (cli *commandLine) stdoutIsTerminal() bool {
	f, ok := cli.out.(*os.File)
	return ok && isTerminalFunc(int(f.Fd()))
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addSchoolCmd := flag.NewFlagSet("addschool", flag.ContinueOnError)
	addSchoolName := addSchoolCmd.String("name", "", "The school's name.")
	addSchoolSlug := addSchoolCmd.String("slug", "", "The school's slug. Derived from its name by default.")
	addSchoolOrg := addSchoolCmd.String("org", "", "An existing identity organization. A new one is created by default.")
	addSchoolCoord := addSchoolCmd.String("coordinator", "", "The email of the school's first coordinator.")
	addSchoolCoordName := addSchoolCmd.String("coordinator-name", "", "The coordinator's name. Defaults to the email.")

	importCmd := flag.NewFlagSet("importstudents", flag.ContinueOnError)
	importSchool := importCmd.String("school", "", "The slug of the school.")
	importFile := importCmd.String("file", "", "The CSV roster (name and email columns are required).")
	importBatch := importCmd.String("batch", "", "The ID of a batch to enroll the students into.")

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	reconcileLimit := reconcileCmd.Int("limit", 100, "The maximum number of students to reconcile.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenUser := tokenCmd.String("user", "", "The identity provider's user ID.")
	tokenEmail := tokenCmd.String("email", "", "The user's email.")
	tokenName := tokenCmd.String("name", "", "The user's name.")
	tokenOrg := tokenCmd.String("org", "", "The organization of the active session.")
	tokenRole := tokenCmd.String("role", "", "The user's role in the organization.")
	tokenAdmin := tokenCmd.Bool("admin", false, "Whether the user is a platform admin.")
	tokenTTL := tokenCmd.Duration("ttl", 24*time.Hour, "How long the token stays valid.")

	for _, fs := range []*flag.FlagSet{addSchoolCmd, importCmd, reconcileCmd, tokenCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addschool":
		if err := addSchoolCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addSchoolName == "" {
			addSchoolCmd.Usage()
			return errHelp
		}
		return cli.addSchool(*addSchoolName, *addSchoolSlug, *addSchoolOrg, *addSchoolCoord, *addSchoolCoordName)

	case "importstudents":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importSchool == "" || *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importStudents(*importSchool, *importFile, *importBatch)

	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *reconcileLimit <= 0 {
			reconcileCmd.Usage()
			return errHelp
		}
		return cli.reconcile(*reconcileLimit)

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenUser == "" || *tokenEmail == "" || (*tokenOrg == "" && !*tokenAdmin) {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenUser, *tokenEmail, *tokenName, *tokenOrg, *tokenRole, *tokenAdmin, *tokenTTL)

	default:
		cli.printUsage()
		return errHelp
	}
}

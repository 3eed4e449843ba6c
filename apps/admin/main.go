package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/somesha/apps/di"
	"github.com/trezcool/somesha/core"
)

func main() {
	conf := core.NewConfig()
	logger := di.NewLogger(conf, "ADMIN")

	c, err := di.New(context.Background(), conf, logger, di.Options{})
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up dependencies: %v", err), err)
	}

	cli := commandLine{
		serverConf: conf.Server,
		schools:    c.Schools,
		students:   c.Students,
		validate:   c.Validate,
		translator: c.Translator,
		out:        os.Stdout,
	}
	if c.DB != nil {
		cli.db = c.DB.DB
	}

	err = cli.run(os.Args)
	c.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

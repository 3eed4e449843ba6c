package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	ut "github.com/go-playground/universal-translator"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/student"
)

func (cli *commandLine) importStudents(schoolSlug, path, batchID string) error {
	ctx := context.Background()

	sch, err := cli.schools.GetBySlug(ctx, schoolSlug)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening roster")
	}
	defer f.Close()

	report, err := cli.students.Import(ctx, sch, f, batchID, cli.validate, cli.translator)
	if err != nil {
		return describeErr(err, cli.translator)
	}
	if cli.stdoutIsTerminal() {
		return printReportTable(cli.out, report)
	}
	return printReportJSON(cli.out, report)
}

func printReportTable(w io.Writer, report student.ImportReport) error {
	fmt.Fprintf(w, "created: %d, updated: %d, invited: %d, linked: %d, sync failed: %d\n",
		report.Created, report.Updated, report.Invited, report.Linked, report.SyncFailed)
	if len(report.Errors) == 0 {
		return nil
	}

	fmt.Fprintf(w, "\n%d rows rejected:\n", len(report.Errors))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tEMAIL\tERROR")
	for _, e := range report.Errors {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Row, e.Email, e.Error)
	}
	return tw.Flush()
}

// printReportJSON writes the report for scripts.
func printReportJSON(w io.Writer, report student.ImportReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func (cli *commandLine) reconcile(limit int) error {
	n, err := cli.students.ReconcilePending(context.Background(), limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d students reconciled\n", n)
	return nil
}

// describeErr turns validation errors into a readable error.
func describeErr(err error, translator ut.Translator) error {
	if len(core.FieldErrors(err, translator)) == 0 {
		return err
	}
	return errors.New(core.DescribeError(err, translator))
}

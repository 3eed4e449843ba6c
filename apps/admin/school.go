package main

import (
	"context"
	"fmt"

	"github.com/trezcool/somesha/core/school"
)

// addSchool creates a school, with its first coordinator when `coordEmail` is given.
func (cli *commandLine) addSchool(name, slug, orgID, coordEmail, coordName string) error {
	ctx := context.Background()

	ns := school.NewSchool{Name: name, Slug: slug, OrgID: orgID}
	if err := ns.Validate(ctx, cli.validate, cli.schools); err != nil {
		return describeErr(err, cli.translator)
	}
	sch, err := cli.schools.Create(ctx, ns)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "school %q created: id=%s org=%s\n", sch.Slug, sch.ID, sch.OrgID)

	if coordEmail == "" {
		return nil
	}
	if coordName == "" {
		coordName = coordEmail
	}
	nc := school.NewCoordinator{Name: coordName, Email: coordEmail}
	if err := nc.Validate(ctx, sch.ID, cli.validate, cli.schools); err != nil {
		return describeErr(err, cli.translator)
	}
	coord, err := cli.schools.AddCoordinator(ctx, sch, nc)
	if err != nil {
		return err
	}
	status := "invited"
	if coord.UserID.Valid {
		status = "linked to user " + coord.UserID.String
	}
	fmt.Fprintf(cli.out, "coordinator %s added (%s)\n", coord.Email, status)
	return nil
}

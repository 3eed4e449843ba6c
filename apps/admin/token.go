package main

import (
	"fmt"
	"time"

	echoapi "github.com/trezcool/somesha/apps/api/echo"
	"github.com/trezcool/somesha/core/member"
)

// token prints a session token signed like the identity provider's, to call the API in development.
func (cli *commandLine) token(userID, email, name, orgID, role string, admin bool, ttl time.Duration) error {
	p := member.Principal{UserID: userID, Email: email, Name: name, OrgID: orgID, OrgRole: role}
	if orgID != "" && role == "" {
		p.OrgRole = member.RoleStudent
	}
	if admin {
		p.PlatformRole = member.PlatformAdmin
	}

	token, err := echoapi.GenerateToken(cli.serverConf, echoapi.NewClaims(cli.serverConf, p, ttl))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

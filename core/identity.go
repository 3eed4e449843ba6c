package core

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrIdentityNotFound = errors.New("identity: not found")
	ErrIdentityConflict = errors.New("identity: already exists")
)

type (
	// IdentityUser is a user account held by the identity provider.
	IdentityUser struct {
		ID        string
		Email     string
		FirstName string
		LastName  string
	}

	// OrgMembership links an IdentityUser to an organization with a role.
	OrgMembership struct {
		ID     string
		OrgID  string
		UserID string
		Role   string
	}

	// IdentityProvider is the third-party service owning users, organizations and their memberships.
	IdentityProvider interface {
		CreateOrganization(ctx context.Context, name, slug string) (orgID string, err error)
		DeleteOrganization(ctx context.Context, orgID string) error
		GetUser(ctx context.Context, userID string) (IdentityUser, error)
		FindUserByEmail(ctx context.Context, email string) (IdentityUser, error)
		GetMembership(ctx context.Context, orgID, userID string) (OrgMembership, error)
		CreateMembership(ctx context.Context, orgID, userID, role string) (OrgMembership, error)
		UpdateMembershipRole(ctx context.Context, orgID, userID, role string) (OrgMembership, error)
		DeleteMembership(ctx context.Context, orgID, userID string) error
		CreateInvitation(ctx context.Context, orgID, email, role, redirectURL string) error
	}
)

func (u IdentityUser) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

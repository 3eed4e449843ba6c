package member

import (
	"context"
	"fmt"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
)

// Outcome tells what Reconcile did at the identity provider.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged" // the user already held the role
	OutcomeJoined    Outcome = "joined"    // the user was added to the organization
	OutcomeUpdated   Outcome = "updated"   // the user's role was changed
	OutcomeInvited   Outcome = "invited"   // no such user yet: an invitation was sent
	OutcomeKept      Outcome = "kept"      // the user holds a higher role which was kept
)

type Reconciliation struct {
	UserID  string  `json:"userId,omitempty"`
	Outcome Outcome `json:"outcome"`
}

// Reconciler aligns organization memberships at the identity provider with our role records.
type Reconciler struct {
	idp         core.IdentityProvider
	redirectURL string
	logger      core.Logger
}

func NewReconciler(idp core.IdentityProvider, redirectURL string, logger core.Logger) *Reconciler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(idp, "idp"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Reconciler{idp: idp, redirectURL: redirectURL, logger: logger}
}

// Reconcile makes sure the identity user owning `email` holds `role` within `orgID`.
// Users unknown to the provider are invited; a higher role already held is never downgraded.
// When the provider refuses an in-place role change, the membership is deleted and re-created once.
func (r *Reconciler) Reconcile(ctx context.Context, orgID, email, role string) (Reconciliation, error) {
	role = NormalizeRole(role)
	if !IsOrgRole(role) {
		return Reconciliation{}, errors.Errorf("unknown role %q", role)
	}

	usr, err := r.idp.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) != core.ErrIdentityNotFound {
			return Reconciliation{}, errors.Wrap(err, "finding identity user")
		}
		err = r.idp.CreateInvitation(ctx, orgID, email, role, r.redirectURL)
		if err != nil && errors.Cause(err) != core.ErrIdentityConflict {
			return Reconciliation{}, errors.Wrap(err, "inviting user")
		}
		return Reconciliation{Outcome: OutcomeInvited}, nil
	}

	res := Reconciliation{UserID: usr.ID}
	ms, err := r.idp.GetMembership(ctx, orgID, usr.ID)
	if err != nil {
		if errors.Cause(err) != core.ErrIdentityNotFound {
			return res, errors.Wrap(err, "getting membership")
		}
		if _, err = r.idp.CreateMembership(ctx, orgID, usr.ID, role); err == nil {
			res.Outcome = OutcomeJoined
			return res, nil
		} else if errors.Cause(err) != core.ErrIdentityConflict {
			return res, errors.Wrap(err, "creating membership")
		}
		// joined in the meantime: check its role
		if ms, err = r.idp.GetMembership(ctx, orgID, usr.ID); err != nil {
			return res, errors.Wrap(err, "getting membership")
		}
	}

	current := NormalizeRole(ms.Role)
	if current == role {
		res.Outcome = OutcomeUnchanged
		return res, nil
	}
	if RolePriority(current) > RolePriority(role) {
		res.Outcome = OutcomeKept
		return res, nil
	}

	if _, err = r.idp.UpdateMembershipRole(ctx, orgID, usr.ID, role); err != nil {
		r.logger.Warn(fmt.Sprintf("updating role of %s in %s failed, re-creating membership", usr.ID, orgID), err)

		if dErr := r.idp.DeleteMembership(ctx, orgID, usr.ID); dErr != nil && errors.Cause(dErr) != core.ErrIdentityNotFound {
			return res, errors.Wrapf(err, "updating membership role (delete fallback: %v)", dErr)
		}
		if _, cErr := r.idp.CreateMembership(ctx, orgID, usr.ID, role); cErr != nil {
			return res, errors.Wrapf(err, "updating membership role (create fallback: %v)", cErr)
		}
	}
	res.Outcome = OutcomeUpdated
	return res, nil
}

// Revoke removes userID from orgID. Missing memberships are not an error.
func (r *Reconciler) Revoke(ctx context.Context, orgID, userID string) error {
	if userID == "" {
		return nil
	}
	if err := r.idp.DeleteMembership(ctx, orgID, userID); err != nil && errors.Cause(err) != core.ErrIdentityNotFound {
		return errors.Wrap(err, "deleting membership")
	}
	return nil
}

// LookupUser fetches the identity user, used to complete Principals lacking a name or email.
func (r *Reconciler) LookupUser(ctx context.Context, userID string) (core.IdentityUser, error) {
	return r.idp.GetUser(ctx, userID)
}

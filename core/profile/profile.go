// Package profile matches identity provider users with the role records of their school.
package profile

import (
	"context"
	"strings"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/school"
	"github.com/trezcool/somesha/core/student"
	"github.com/trezcool/somesha/core/trainer"
)

// RolePlatformAdmin is reported for platform admins acting outside of any organization.
const RolePlatformAdmin = "platform_admin"

var ErrNoOrganization = errors.New("no active organization")

type (
	Result struct {
		Role        string              `json:"role"`
		School      *school.School      `json:"school,omitempty"`
		Coordinator *school.Coordinator `json:"coordinator,omitempty"`
		Trainer     *trainer.Trainer    `json:"trainer,omitempty"`
		Student     *student.Student    `json:"student,omitempty"`
		member.SyncResult
	}

	Users interface {
		LookupUser(ctx context.Context, userID string) (core.IdentityUser, error)
	}

	Service struct {
		schools  *school.Service
		trainers *trainer.Service
		students *student.Service
		users    Users
		logger   core.Logger
	}
)

func NewService(schools *school.Service, trainers *trainer.Service, students *student.Service, users Users, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(schools, "schools"),
		vala.IsNotNil(trainers, "trainers"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{schools: schools, trainers: trainers, students: students, users: users, logger: logger}
}

// Sync resolves the school of the Principal's organization and makes sure the role record
// matching its organization role exists and is linked to the identity user.
func (svc *Service) Sync(ctx context.Context, p member.Principal) (Result, error) {
	if p.OrgID == "" {
		if p.IsPlatformAdmin() {
			return Result{Role: RolePlatformAdmin}, nil
		}
		return Result{}, core.NewValidationError(ErrNoOrganization)
	}

	sch, err := svc.schools.GetByOrg(ctx, p.OrgID)
	if err != nil {
		return Result{}, err
	}
	p = svc.complete(ctx, p)

	res := Result{School: &sch}
	switch {
	case p.IsCoordinator():
		coord, sr, err := svc.schools.SyncCoordinator(ctx, sch.ID, p)
		if err != nil {
			return Result{}, err
		}
		res.Role, res.Coordinator, res.SyncResult = "coordinator", &coord, sr
	case p.IsTrainer():
		t, sr, err := svc.trainers.Sync(ctx, sch.ID, p)
		if err != nil {
			return Result{}, err
		}
		res.Role, res.Trainer, res.SyncResult = "trainer", &t, sr
	case p.IsStudent():
		s, sr, err := svc.students.Sync(ctx, sch.ID, p)
		if err != nil {
			return Result{}, err
		}
		res.Role, res.Student, res.SyncResult = "student", &s, sr
	case p.IsPlatformAdmin():
		res.Role = RolePlatformAdmin
	default:
		return Result{}, core.ErrPermissionDenied
	}
	return res, nil
}

// complete fills the name and email missing from the session token with the identity user's.
func (svc *Service) complete(ctx context.Context, p member.Principal) member.Principal {
	if p.Email == "" || p.Name == "" {
		if usr, err := svc.users.LookupUser(ctx, p.UserID); err != nil {
			svc.logger.Warn("looking up identity user "+p.UserID, err)
		} else {
			if p.Email == "" {
				p.Email = usr.Email
			}
			if p.Name == "" {
				p.Name = usr.FullName()
			}
		}
	}
	if p.Name == "" {
		p.Name = strings.SplitN(p.Email, "@", 2)[0]
	}
	return p
}

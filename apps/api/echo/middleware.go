package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/school"
	"github.com/trezcool/somesha/core/student"
	"github.com/trezcool/somesha/core/trainer"
)

const schoolIDParam = "schoolId"

// tenancy resolves the school addressed by a request (the caller's organization, or `?schoolId=`
// for platform admins) and the role records the caller owns in it.
type tenancy struct {
	schools  *school.Service
	trainers *trainer.Service
	students *student.Service
}

func newTenancy(schools *school.Service, trainers *trainer.Service, students *student.Service) *tenancy {
	return &tenancy{schools: schools, trainers: trainers, students: students}
}

// required rejects requests whose school cannot be resolved.
func (tn *tenancy) required(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := tn.actor(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}

// optional lets platform admins without an organization through with a school-less Actor.
func (tn *tenancy) optional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		p, err := getPrincipal(ctx)
		if err != nil {
			return err
		}
		if p.IsPlatformAdmin() && p.OrgID == "" && ctx.QueryParam(schoolIDParam) == "" {
			ctx.Set(contextActorKey, member.Actor{Principal: p})
			return next(ctx)
		}
		return tn.required(next)(ctx)
	}
}

// actor returns the Actor of the request, resolving it on first use.
func (tn *tenancy) actor(ctx echo.Context) (member.Actor, error) {
	if actor, ok := ctx.Get(contextActorKey).(member.Actor); ok {
		return actor, nil
	}

	p, err := getPrincipal(ctx)
	if err != nil {
		return member.Actor{}, err
	}
	sch, err := tn.school(ctx, p)
	if err != nil {
		return member.Actor{}, err
	}
	if !sch.IsActive && !p.IsPlatformAdmin() {
		return member.Actor{}, errSchoolInactive
	}

	actor := member.Actor{Principal: p, SchoolID: sch.ID, SchoolOrgID: sch.OrgID}
	// organization roles only apply within the caller's own organization
	if sch.OrgID == p.OrgID {
		if err := tn.resolveRecords(ctx, &actor); err != nil {
			return member.Actor{}, err
		}
	}

	ctx.Set(contextSchoolKey, sch)
	ctx.Set(contextActorKey, actor)
	return actor, nil
}

func (tn *tenancy) school(ctx echo.Context, p member.Principal) (school.School, error) {
	c := ctx.Request().Context()
	if id := ctx.QueryParam(schoolIDParam); id != "" && p.IsPlatformAdmin() {
		sch, err := tn.schools.GetByID(c, id)
		return sch, errors.Wrap(err, "getting school by id")
	}
	if p.OrgID == "" {
		if p.IsPlatformAdmin() {
			return school.School{}, errSchoolIDRequired
		}
		return school.School{}, errNoOrganization
	}
	sch, err := tn.schools.GetByOrg(c, p.OrgID)
	return sch, errors.Wrap(err, "getting school by organization")
}

func (tn *tenancy) resolveRecords(ctx echo.Context, actor *member.Actor) error {
	c := ctx.Request().Context()
	lookup := member.Lookup{UserID: actor.UserID}
	if lookup.IsEmpty() {
		return nil
	}

	var err error
	switch {
	case actor.IsCoordinator():
		var coord school.Coordinator
		if coord, err = tn.schools.GetCoordinator(c, actor.SchoolID, lookup); err == nil {
			actor.CoordinatorID = coord.ID
		}
	case actor.IsTrainer():
		var t trainer.Trainer
		if t, err = tn.trainers.Get(c, actor.SchoolID, lookup); err == nil {
			actor.TrainerID = t.ID
		}
	case actor.IsStudent():
		var s student.Student
		if s, err = tn.students.Get(c, actor.SchoolID, lookup); err == nil {
			actor.StudentID = s.ID
		}
	}
	// records are created by /sync/me
	if err != nil && !core.IsNotFound(err) {
		return errors.Wrap(err, "resolving role record")
	}
	return nil
}

func getActor(ctx echo.Context) (member.Actor, error) {
	actor, ok := ctx.Get(contextActorKey).(member.Actor)
	if !ok {
		return member.Actor{}, errActorNotFoundInCtx
	}
	return actor, nil
}

func getSchool(ctx echo.Context) (school.School, error) {
	sch, ok := ctx.Get(contextSchoolKey).(school.School)
	if !ok {
		return school.School{}, errObjNotFoundInCtx
	}
	return sch, nil
}

// schoolAdminMiddleware only lets the coordinators of the resolved school and platform admins through.
func schoolAdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := getActor(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context actor")
		}
		if actor.IsSchoolAdmin() {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

func platformAdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		p, err := getPrincipal(ctx)
		if err != nil {
			return err
		}
		if p.IsPlatformAdmin() {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

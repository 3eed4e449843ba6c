package member

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/somesha/core"
)

var (
	orgRoleTag  = "orgrole"
	orgRoleText = "invalid role"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(orgRoleTag, orgRoleValidation)
	core.RegisterCustomTranslation(validate, translator, orgRoleTag, orgRoleText)
}

// orgRoleValidation checks that the role is one of OrgRoles (or an alias of one).
func orgRoleValidation(fl validator.FieldLevel) bool {
	return IsOrgRole(NormalizeRole(fl.Field().String()))
}

package render

import (
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/crmauth/internal/models"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("crmrole", validateRole)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

// Return on 'TagName' json tag instead of struct name
// Look at documentation of 'RegisterTagNameFunc' for more details
func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Role name known to the CRM, case insensitive. Use with 'dive' for slices
func validateRole(fl validator.FieldLevel) bool {
	role := strings.ToUpper(strings.TrimSpace(fl.Field().String()))
	return slices.Contains(models.KnownRoles, role)
}

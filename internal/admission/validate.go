package admission

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/epitomedu/epi/internal/admission/models"
	dErrors "github.com/epitomedu/epi/pkg/domain-errors"
	pstrings "github.com/epitomedu/epi/pkg/platform/strings"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize trims every field, checks that none is blank and reduces the
// parent phone to its digits. It reports the first offending field in
// declaration order.
func Normalize(sub models.Submission) (models.Submission, error) {
	trimFields(&sub)

	if err := validate.Struct(sub); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return models.Submission{}, requiredError(verrs[0].Field())
		}
		return models.Submission{}, dErrors.Wrap(err, dErrors.CodeInternal, "validation failed")
	}

	sub.ParentPhone = pstrings.DigitsOnly(sub.ParentPhone)
	if sub.ParentPhone == "" {
		return models.Submission{}, requiredError("parentPhone")
	}
	return sub, nil
}

func requiredError(field string) error {
	return dErrors.New(dErrors.CodeValidation, field+" is required")
}

// trimFields trims whitespace from all string fields in a struct.
func trimFields(v any) {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return
	}
	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if field.CanSet() && field.Kind() == reflect.String {
			field.SetString(strings.TrimSpace(field.String()))
		}
	}
}

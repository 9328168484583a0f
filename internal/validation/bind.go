package validation

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
)

// BindAndValidate binds the JSON body into out and runs validation. Failures
// come back as a VALIDATION_ERROR carrying per-field messages; the caller
// renders it like any other error.
func BindAndValidate(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := Bind(c, out); err != nil {
		return err
	}
	return Validate(v, out)
}

// Bind decodes the JSON body into out. An empty body leaves out untouched.
func Bind(c *gin.Context, out any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(out); err != nil {
		return apperr.Validation("invalid request body", map[string]string{"body": err.Error()})
	}
	return nil
}

// Validate runs v over out and converts failures to an apperr.
func Validate(v *validatorv10.Validate, out any) error {
	if err := v.Struct(out); err != nil {
		return apperr.Validation("request validation failed", validationErrorsToMap(err))
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		out["error"] = err.Error()
		return out
	}
	for _, fe := range ve {
		out[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required", "required_for_guest":
		return "is required"
	case "email":
		return "must be a valid e-mail address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	}
	return fe.Error()
}

// Package validator checks request DTOs with go-playground/validator and reports errors by JSON field name.
package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/quizarena/economy-api/internal/pkg/money"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// decimals are validated through their string form
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	// amount: non-negative with at most two fractional digits
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := money.Parse(s)
		return err == nil
	})

	return v
}

var messages = map[string]string{
	"required": "This field is required",
	"amount":   "Must be a non-negative amount with at most 2 decimal places",
}

// Validate returns one message per invalid field, or nil.
func Validate(s any) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		switch {
		case ok:
		case fe.Tag() == "max":
			msg = "Must be at most " + fe.Param()
		case fe.Tag() == "gte":
			msg = "Must be at least " + fe.Param()
		default:
			msg = "Invalid value"
		}
		out[fe.Field()] = msg
	}
	return out
}

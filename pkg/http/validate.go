package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// newValidator reports fields by the query or path parameter they bind from,
// so a client sees "window" rather than "Window".
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"query", "param"} {
			if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// BindQuery binds path and query parameters into req, fills `default` tags
// for parameters the client left out, then validates. It returns nil when
// the request is usable.
func BindQuery(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return bindErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return bindErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return bindErrors(err)
	}
	return nil
}

func bindErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msg, params := describe(fe)
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: msg,
				Params:  params,
			})
		}
		return out
	}

	// echo reports unparsable numbers such as ?window=abc as a 400
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []ValidationError{{Code: "ERR_BIND", Message: err.Error()}}
}

// describe covers the tags used by the pricing and market request types.
func describe(fe validator.FieldError) (string, map[string]interface{}) {
	field, p := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return field + " is required", nil
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, p), map[string]interface{}{"value": p}
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, p), map[string]interface{}{"min": p}
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, p), map[string]interface{}{"max": p}
	case "oneof":
		opts := strings.Fields(p)
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(opts, ", ")), map[string]interface{}{"options": opts}
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag()), nil
	}
}

package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodePositional unmarshals a params array into dst. The first required
// entries must be present; later ones are optional.
func decodePositional(params json.RawMessage, required int, dst ...any) error {
	var raw []json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &raw); err != nil {
			return ErrInvalidParams("params must be an array")
		}
	}
	if len(raw) < required {
		return ErrInvalidParams(fmt.Sprintf("expected at least %d params, got %d", required, len(raw)))
	}
	if len(raw) > len(dst) {
		return ErrInvalidParams(fmt.Sprintf("expected at most %d params, got %d", len(dst), len(raw)))
	}
	for i, r := range raw {
		if err := json.Unmarshal(r, dst[i]); err != nil {
			return ErrInvalidParams(fmt.Sprintf("invalid param %d: %v", i, err))
		}
	}
	return nil
}

// validateParams runs struct validation and reports the first failure.
func validateParams(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return ErrInvalidParams(fmt.Sprintf("%s is required", fe.Field()))
		}
		return ErrInvalidParams(fmt.Sprintf("invalid %s: failed %s", fe.Field(), fe.Tag()))
	}
	return ErrInvalidParams(err.Error())
}

package config

import (
	"reflect"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// Validator is implemented by configuration structs with checks beyond
// required tags. Validate runs after required fields pass. A returned
// *sserr.Error is passed through; anything else is wrapped as
// CodeValidation.
type Validator interface {
	Validate() error
}

var timeType = reflect.TypeOf(time.Time{})

func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, isSSErr := sserr.AsError(err); isSSErr {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
	}
	return nil
}

// validateRequired walks nested structs and reports the first required
// field that is zero, by dotted path ("Postgres.Host").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}
		if field.Kind() == reflect.Struct && sf.Type != timeType {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}
	return nil
}

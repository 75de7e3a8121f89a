package config

import (
	"reflect"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Validator is implemented by config structs that need checks beyond
// `required` tags. Validate runs after the required checks pass. A
// non-*sserr.Error result is wrapped with [sserr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	return sserr.Wrap(err, sserr.CodeValidation, "config: validation failed")
}

// validateRequired reports the first `required:"true"` field left zero,
// naming it by dotted path ("Keys.PrivateKey").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		name := sf.Name
		if path != "" {
			name = path + "." + sf.Name
		}
		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := validateRequired(field, name); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", name)
		}
	}
	return nil
}

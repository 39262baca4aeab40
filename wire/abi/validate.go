// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abi

import (
	"fmt"
	"reflect"
)

// Validate rejects struct types whose field graph contains a cycle,
// walking the same field set Encoder/Decoder would traverse.
func Validate(v interface{}) error {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return validateType(t, map[reflect.Type]bool{})
}

func validateType(t reflect.Type, visiting map[reflect.Type]bool) error {
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Array:
		return validateType(t.Elem(), visiting)
	case reflect.Struct:
		if visiting[t] {
			return fmt.Errorf("%w: %s", ErrCircularType, t)
		}
		visiting[t] = true
		defer delete(visiting, t)
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			if err := validateType(field.Type, visiting); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

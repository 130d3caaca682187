// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jsonrpc

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// ReadParam reads params[index] into ptr.
//
// It fails with ParamMissing if index is out of range and with
// ParamTypeMismatch if the value cannot be stored in ptr.
func ReadParam(params []any, index int, ptr any) error {
	if index < 0 || index >= len(params) {
		err := NewError(ParamMissing, nil)
		err.Location = callerLocation(2)
		return err.WithProperty(DescriptionProperty,
			fmt.Sprintf("no parameter at index %d", index))
	}
	return assign(params[index], ptr)
}

// ReadParamAs is the typed variant of ReadParam.
func ReadParamAs[T any](params []any, index int) (T, error) {
	var out T
	err := ReadParam(params, index, &out)
	return out, err
}

// ReadParams reads sequential positions of params into ptrs,
// returning the first error encountered.
func ReadParams(params []any, ptrs ...any) error {
	for i, ptr := range ptrs {
		if err := ReadParam(params, i, ptr); err != nil {
			return err
		}
	}
	return nil
}

// ReadObject reads the named field of obj into ptr.
func ReadObject(obj map[string]any, name string, ptr any) error {
	v, ok := obj[name]
	if !ok {
		err := NewError(ParamMissing, nil)
		err.Location = callerLocation(2)
		return err.WithProperty(DescriptionProperty,
			fmt.Sprintf("no such parameter '%s'", name))
	}
	return assign(v, ptr)
}

// ReadObjectFields reads name/pointer pairs from obj, e.g.
//
//	ReadObjectFields(obj, "path", &path, "line", &line)
func ReadObjectFields(obj map[string]any, pairs ...any) error {
	if len(pairs)%2 != 0 {
		return fmt.Errorf("odd number of name/pointer arguments: %d", len(pairs))
	}
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			return fmt.Errorf("argument %d: expected field name, got %T", i, pairs[i])
		}
		if err := ReadObject(obj, name, pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// ReadObjectParam reads the object at params[index] and then the given
// name/pointer pairs from it.
func ReadObjectParam(params []any, index int, pairs ...any) error {
	var obj map[string]any
	if err := ReadParam(params, index, &obj); err != nil {
		return err
	}
	return ReadObjectFields(obj, pairs...)
}

// ReadObjectOptional reads the named field of obj into ptr, storing
// def instead when the field is absent. Absence is never an error.
func ReadObjectOptional[T any](obj map[string]any, name string, def T, ptr *T) error {
	v, ok := obj[name]
	if !ok {
		*ptr = def
		return nil
	}
	return assign(v, ptr)
}

// ReadObjectInto decodes obj into out, which must be a pointer to a
// struct or map. Fields are matched using "json" struct tags.
func ReadObjectInto(obj map[string]any, out any) error {
	return decodeObject(obj, out)
}

func decodeObject(obj map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: false,
		Result:           out,
		DecodeHook:       numberHook,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(obj); err != nil {
		rpcErr := NewError(ParamTypeMismatch, err)
		rpcErr.Location = callerLocation(3)
		return rpcErr.WithProperty(DescriptionProperty, err.Error())
	}
	return nil
}

// numberHook converts json.Number values so that mapstructure can
// store them in numeric fields.
func numberHook(from, to reflect.Type, data any) (any, error) {
	n, ok := data.(json.Number)
	if !ok {
		return data, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	return n.Float64()
}

func assign(v any, ptr any) error {
	switch p := ptr.(type) {
	case *any:
		*p = v
	case *string:
		s, ok := v.(string)
		if !ok {
			return typeMismatch("string", v)
		}
		*p = s
	case *bool:
		b, ok := v.(bool)
		if !ok {
			return typeMismatch("boolean", v)
		}
		*p = b
	case *int:
		n, ok := toInt(v)
		if !ok || n < math.MinInt || n > math.MaxInt {
			return typeMismatch("integer", v)
		}
		*p = int(n)
	case *int64:
		n, ok := toInt(v)
		if !ok {
			return typeMismatch("integer", v)
		}
		*p = n
	case *float64:
		f, ok := toFloat(v)
		if !ok {
			return typeMismatch("number", v)
		}
		*p = f
	case *[]any:
		a, ok := v.([]any)
		if !ok {
			return typeMismatch("array", v)
		}
		*p = a
	case *[]string:
		a, ok := v.([]any)
		if !ok {
			return typeMismatch("array", v)
		}
		out := make([]string, 0, len(a))
		for _, elem := range a {
			s, ok := elem.(string)
			if !ok {
				return typeMismatch("string", elem)
			}
			out = append(out, s)
		}
		*p = out
	case *map[string]any:
		o, ok := v.(map[string]any)
		if !ok {
			return typeMismatch("object", v)
		}
		*p = o
	default:
		o, ok := v.(map[string]any)
		if !ok {
			return typeMismatch("object", v)
		}
		return decodeObject(o, ptr)
	}
	return nil
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case float64:
		return floatToInt(n)
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// floatToInt accepts integral floats representable as int64.
func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f < -9.223372036854775808e18 || f >= 9.223372036854775808e18 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// typeName returns the JSON type name of v.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"time"
)

// TimeFieldIndex indexes a time.Time field so that entries
// can be range-scanned in chronological order.
type TimeFieldIndex struct {
	Field string
}

func (u *TimeFieldIndex) FromObject(obj interface{}) (bool, []byte, error) {
	v := reflect.ValueOf(obj)
	v = reflect.Indirect(v) // Dereference the pointer if any

	fv := v.FieldByName(u.Field)
	if !fv.IsValid() {
		return false, nil,
			fmt.Errorf("field '%s' for %#v is invalid", u.Field, obj)
	}

	val, ok := fv.Interface().(time.Time)
	if !ok {
		return false, nil, fmt.Errorf("field %q is of type %v; want a time.Time",
			u.Field, fv.Type())
	}

	return true, encodeTime(val), nil
}

func (u *TimeFieldIndex) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}

	v := reflect.ValueOf(args[0])
	if !v.IsValid() {
		return nil, fmt.Errorf("%#v is invalid", args[0])
	}

	val, ok := v.Interface().(time.Time)
	if !ok {
		return nil, fmt.Errorf("arg is of type %v; want a time.Time", v.Type())
	}

	return encodeTime(val), nil
}

func encodeTime(t time.Time) []byte {
	return append(encodeInt(t.Unix(), 8), encodeInt(int64(t.Nanosecond()), 4)...)
}

func encodeInt(val int64, size int) []byte {
	buf := make([]byte, size)

	// flip the sign bit so that byte order matches numeric order
	scaled := val ^ int64(-1<<(size*8-1))

	switch size {
	case 4:
		binary.BigEndian.PutUint32(buf, uint32(scaled))
	case 8:
		binary.BigEndian.PutUint64(buf, uint64(scaled))
	default:
		panic(fmt.Sprintf("unsupported int size parameter: %d", size))
	}

	return buf
}

package task

import (
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Bind wraps any func value together with its arguments.
//
// fn may be a plain function, a method value (obj.Method), a closure, or a
// value of a named func type. args are checked against the signature here,
// so a bad binding fails at registration rather than on the scheduler loop.
// The same argument values are passed on every Execute.
//
// Results map to the Task value as follows:
//   - no results: nil
//   - a single error: nil value, that error
//   - a single value: the value
//   - (T, error): the value and the error
//   - anything else: []any holding every result
func Bind(fn any, args ...any) (*Task[any], error) {
	fv := reflect.ValueOf(fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %T", ErrNotFunc, fn)
	}
	if fv.IsNil() {
		return nil, fmt.Errorf("%w: nil %T", ErrNotFunc, fn)
	}
	ft := fv.Type()

	in, err := bindArgs(ft, args)
	if err != nil {
		return nil, err
	}
	call := func() (any, error) {
		var out []reflect.Value
		if ft.IsVariadic() {
			out = fv.CallSlice(in)
		} else {
			out = fv.Call(in)
		}
		return mapResults(ft, out)
	}
	return New(call), nil
}

func bindArgs(ft reflect.Type, args []any) ([]reflect.Value, error) {
	n := ft.NumIn()
	if !ft.IsVariadic() {
		if len(args) != n {
			return nil, fmt.Errorf("%w: want %d, got %d", ErrArgCount, n, len(args))
		}
		in := make([]reflect.Value, n)
		for i := 0; i < n; i++ {
			v, err := argValue(ft.In(i), args[i], i)
			if err != nil {
				return nil, err
			}
			in[i] = v
		}
		return in, nil
	}

	// Variadic: fixed params first, the rest packed into the trailing slice
	// so CallSlice sees the exact same slice on every run.
	fixed := n - 1
	if len(args) < fixed {
		return nil, fmt.Errorf("%w: want at least %d, got %d", ErrArgCount, fixed, len(args))
	}
	in := make([]reflect.Value, n)
	for i := 0; i < fixed; i++ {
		v, err := argValue(ft.In(i), args[i], i)
		if err != nil {
			return nil, err
		}
		in[i] = v
	}
	sliceType := ft.In(fixed)
	rest := reflect.MakeSlice(sliceType, 0, len(args)-fixed)
	for i := fixed; i < len(args); i++ {
		v, err := argValue(sliceType.Elem(), args[i], i)
		if err != nil {
			return nil, err
		}
		rest = reflect.Append(rest, v)
	}
	in[fixed] = rest
	return in, nil
}

func argValue(want reflect.Type, arg any, idx int) (reflect.Value, error) {
	if arg == nil {
		switch want.Kind() {
		case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: arg %d: nil for %s", ErrArgType, idx, want)
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(want) {
		return v, nil
	}
	// Untyped constants arrive as int/float64; allow lossless numeric conversion.
	if isNumeric(v.Kind()) && isNumeric(want.Kind()) && v.CanConvert(want) {
		if isUnsigned(want.Kind()) && isNegative(v) {
			return reflect.Value{}, fmt.Errorf("%w: arg %d: negative %v for %s", ErrArgType, idx, arg, want)
		}
		c := v.Convert(want)
		if c.Convert(v.Type()).Interface() == v.Interface() {
			return c, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: arg %d: %s is not assignable to %s", ErrArgType, idx, v.Type(), want)
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isNegative(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() < 0
	case reflect.Float32, reflect.Float64:
		return v.Float() < 0
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func mapResults(ft reflect.Type, out []reflect.Value) (any, error) {
	switch ft.NumOut() {
	case 0:
		return nil, nil
	case 1:
		if ft.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	case 2:
		if ft.Out(1) == errorType {
			return out[0].Interface(), asError(out[1])
		}
	}
	all := make([]any, len(out))
	for i, v := range out {
		all[i] = v.Interface()
	}
	return all, nil
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

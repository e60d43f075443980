// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package workerloop

import (
	"context"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// errMethodNotFound names both the method and the service in its
// message, so dispatcher-side tests can assert on it without coupling
// to this package's internals.
func errMethodNotFound(serviceName, methodName string) error {
	return fmt.Errorf("Requested method '%s' does not belong to service '%s'", methodName, serviceName)
}

// invoke calls methodName on service by reflection, passing args
// positionally. serviceName is the name service was registered under,
// used only to name the service in errMethodNotFound -- it has no
// bearing on resolving the method itself, since service is already the
// concrete resolved value. If the method's first parameter is a
// context.Context, ctx is supplied automatically and does not consume an
// entry of args. The method's return values are interpreted as (result,
// error), (error), (result), or () depending on arity and whether the
// final return type is error -- this lets plain Go methods of many
// common shapes serve as dispatcher-invocable services without any
// interface to implement.
func invoke(ctx context.Context, serviceName string, service any, methodName string, args []any) (result any, err error) {
	v := reflect.ValueOf(service)
	method := v.MethodByName(methodName)
	if !method.IsValid() {
		return nil, errMethodNotFound(serviceName, methodName)
	}
	mt := method.Type()

	argIdx := 0
	in := make([]reflect.Value, 0, mt.NumIn())
	for i := 0; i < mt.NumIn(); i++ {
		paramType := mt.In(i)
		if i == 0 && paramType == contextType {
			in = append(in, reflect.ValueOf(ctx))
			continue
		}
		if argIdx >= len(args) {
			return nil, fmt.Errorf("method '%s' expects at least %d argument(s), got %d", methodName, argIdx+mt.NumIn()-i, len(args))
		}
		argVal, convErr := convertArg(args[argIdx], paramType)
		if convErr != nil {
			return nil, fmt.Errorf("method '%s' argument %d: %v", methodName, argIdx, convErr)
		}
		in = append(in, argVal)
		argIdx++
	}

	out := method.Call(in)
	return splitReturns(out)
}

func convertArg(arg any, paramType reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(paramType), nil
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(paramType) {
		return v, nil
	}
	if v.Type().ConvertibleTo(paramType) {
		return v.Convert(paramType), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, paramType)
}

func splitReturns(out []reflect.Value) (result any, err error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if out[0].Type().Implements(errorType) {
			if out[0].IsNil() {
				return nil, nil
			}
			return nil, out[0].Interface().(error)
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		if last.Type().Implements(errorType) {
			if !last.IsNil() {
				err = last.Interface().(error)
			}
			if len(out) == 2 {
				return out[0].Interface(), err
			}
			values := make([]any, len(out)-1)
			for i := range values {
				values[i] = out[i].Interface()
			}
			return values, err
		}
		values := make([]any, len(out))
		for i := range values {
			values[i] = out[i].Interface()
		}
		return values, nil
	}
}

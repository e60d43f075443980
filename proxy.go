// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"reflect"
)

// ServiceProxy is an ergonomic facade over Dispatch, scoped to one
// service: it exposes an untyped Call and a reflect-based Bind that
// builds concrete function stubs per method.
type ServiceProxy struct {
	d         *Dispatcher
	service   string
	scopeName string
}

// Get returns a ServiceProxy for serviceType within scopeName (empty
// for the default scope). Every call it makes is forwarded to Dispatch
// with MethodName set to the invoked property name, argument ordering
// preserved verbatim.
func (d *Dispatcher) Get(serviceType, scopeName string) *ServiceProxy {
	return &ServiceProxy{d: d, service: serviceType, scopeName: scopeName}
}

// Call invokes methodName on the proxied service with the given
// arguments.
func (p *ServiceProxy) Call(ctx context.Context, methodName string, args ...any) (any, error) {
	return p.d.Dispatch(ctx, Task{
		ServiceName:      p.service,
		ServiceScopeName: p.scopeName,
		MethodName:       methodName,
		MethodArguments:  args,
	})
}

// Bind populates dst, a pointer to a struct of func(...) fields, with
// stubs that forward each call to Call using the field's name as
// methodName. A stub field's function type may take a context.Context
// as its first parameter, which is then passed to Dispatch (otherwise
// context.Background() is used), and returns either nothing, a single
// value, or (value, error); the call blocks until Dispatch resolves.
// Fields not of func type are left untouched.
//
// Bind(&client) gives calling code a compile-time-checked call
// signature per method instead of an untyped Call(ctx, name, args...).
func (p *ServiceProxy) Bind(dst any) {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		panic("dispatcher: Bind requires a pointer to a struct")
	}
	p.bindFields(v.Elem())
}

func (p *ServiceProxy) bindFields(dst reflect.Value) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type.Kind() != reflect.Func {
			continue
		}
		dst.Field(i).Set(p.makeStub(field.Name, field.Type))
	}
}

// makeStub returns a reflect.MakeFunc closure of type fnType that
// forwards its call to Call(ctx, methodName, args...) and adapts the
// (value, error) result into fnType's declared return shape.
func (p *ServiceProxy) makeStub(methodName string, fnType reflect.Type) reflect.Value {
	return reflect.MakeFunc(fnType, func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		args := in
		if fnType.NumIn() > 0 && fnType.In(0) == reflect.TypeOf((*context.Context)(nil)).Elem() {
			ctx = in[0].Interface().(context.Context)
			args = in[1:]
		}
		callArgs := make([]any, len(args))
		for i, a := range args {
			callArgs[i] = a.Interface()
		}
		result, err := p.Call(ctx, methodName, callArgs...)
		return adaptResult(fnType, result, err)
	})
}

// adaptResult packs (result, err) into fnType's declared outputs: zero
// results, one (value or error), or two (value, error).
func adaptResult(fnType reflect.Type, result any, err error) []reflect.Value {
	numOut := fnType.NumOut()
	out := make([]reflect.Value, numOut)
	errType := reflect.TypeOf((*error)(nil)).Elem()
	for i := 0; i < numOut; i++ {
		outType := fnType.Out(i)
		if outType == errType {
			if err != nil {
				out[i] = reflect.ValueOf(err)
			} else {
				out[i] = reflect.Zero(errType)
			}
			continue
		}
		if result != nil && reflect.TypeOf(result).AssignableTo(outType) {
			out[i] = reflect.ValueOf(result)
		} else {
			out[i] = reflect.Zero(outType)
		}
	}
	return out
}

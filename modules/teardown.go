package modules

import (
	"reflect"
	"sync"
)

// Teardown turns whatever an event source handed back for a subscription into
// a single function that is safe to call any number of times and never panics.
// Recognised handles: nil, any niladic function type (context.CancelFunc
// included) returning nothing or an error, and values with an Unsubscribe or
// Stop method (with or without an error result).
func Teardown(handle interface{}) func() error {
	var stop func() error
	switch h := handle.(type) {
	case nil:
		stop = func() error { return nil }
	case func():
		stop = func() error { h(); return nil }
	case func() error:
		stop = h
	case interface{ Unsubscribe() }:
		stop = func() error { h.Unsubscribe(); return nil }
	case interface{ Unsubscribe() error }:
		stop = h.Unsubscribe
	case interface{ Stop() }:
		stop = func() error { h.Stop(); return nil }
	case interface{ Stop() error }:
		stop = h.Stop
	default:
		stop = callable(handle)
	}
	var once sync.Once
	return func() (err error) {
		once.Do(func() {
			defer func() {
				if r := recover(); r != nil {
					err = &teardownPanic{value: r}
				}
			}()
			err = stop()
		})
		return err
	}
}

// callable covers named function types, which the type switch cannot match.
func callable(handle interface{}) func() error {
	v := reflect.ValueOf(handle)
	if v.Kind() != reflect.Func || v.IsNil() || v.Type().NumIn() != 0 {
		return func() error { return nil }
	}
	errorType := reflect.TypeOf((*error)(nil)).Elem()
	switch out := v.Type(); {
	case out.NumOut() == 0:
		return func() error { v.Call(nil); return nil }
	case out.NumOut() == 1 && out.Out(0) == errorType:
		return func() error {
			result := v.Call(nil)[0]
			if result.IsNil() {
				return nil
			}
			return result.Interface().(error)
		}
	}
	return func() error { return nil }
}

type teardownPanic struct {
	value interface{}
}

func (p *teardownPanic) Error() string {
	return "subscription teardown panicked"
}

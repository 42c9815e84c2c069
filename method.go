package duplexrpc

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"duplexrpc/codec"
)

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errType = reflect.TypeOf((*error)(nil)).Elem()

// methodAdapter holds the reflection metadata needed to invoke a
// registered Go function from a decoded argument payload, generalizing
// mini-RPC's server/service.go from the fixed "func(*Args, *Reply)
// error" struct-method convention to an arbitrary-arity closure:
//
//	func([ctx context.Context,] A1, ..., An) (R, error)
//	func([ctx context.Context,] A1, ..., An) R
//	func([ctx context.Context,] A1, ..., An) error
//	func([ctx context.Context,] A1, ..., An)
//
// There is no separate sync/async registration entry point the way the
// original C++ template did — every handler here already runs on its
// own goroutine (spawned by pubsub.run), so a handler that blocks on a
// nested call back to the peer never stalls the receive loop.
type methodAdapter struct {
	fn        reflect.Value
	wantsCtx  bool
	argTypes  []reflect.Type
	hasResult bool
	hasError  bool
}

func newMethodAdapter(fn any) (*methodAdapter, error) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("duplexrpc: method handler must be a function, got %s", t.Kind())
	}

	start := 0
	wantsCtx := false
	if t.NumIn() > 0 && t.In(0) == ctxType {
		wantsCtx = true
		start = 1
	}

	argTypes := make([]reflect.Type, 0, t.NumIn()-start)
	for i := start; i < t.NumIn(); i++ {
		argTypes = append(argTypes, t.In(i))
	}

	var hasResult, hasError bool
	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errType {
			hasError = true
		} else {
			hasResult = true
		}
	case 2:
		if t.Out(1) != errType {
			return nil, errors.New("duplexrpc: a two-value method handler's second return must be error")
		}
		hasResult = true
		hasError = true
	default:
		return nil, errors.New("duplexrpc: method handler may return at most (result, error)")
	}

	return &methodAdapter{
		fn:        v,
		wantsCtx:  wantsCtx,
		argTypes:  argTypes,
		hasResult: hasResult,
		hasError:  hasError,
	}, nil
}

// decodeArgs deserializes payload (a codec-encoded tuple of arguments)
// into reflect.Values matching argTypes, checking arity and coercing
// each element to its declared type via a re-encode/decode round trip.
// The round trip is what lets a single generic Codec (JSON or CBOR)
// carry a heterogeneous argument list without the RPC layer needing to
// know the wire format's array/object encoding details.
func decodeArgs(c codec.Codec, payload []byte, argTypes []reflect.Type) ([]reflect.Value, error) {
	var raw []any
	if len(payload) > 0 {
		if err := c.Decode(payload, &raw); err != nil {
			return nil, err
		}
	}
	if len(raw) != len(argTypes) {
		return nil, fmt.Errorf("duplexrpc: expected %d arguments, got %d", len(argTypes), len(raw))
	}

	values := make([]reflect.Value, len(argTypes))
	for i, argType := range argTypes {
		elemBytes, err := c.Encode(raw[i])
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(argType)
		if err := c.Decode(elemBytes, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("duplexrpc: argument %d: %w", i, err)
		}
		values[i] = ptr.Elem()
	}
	return values, nil
}

// encodeArgs serializes a call's argument list as a single composite
// value — a generic []any tuple — rather than one value per argument.
func encodeArgs(c codec.Codec, args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	return c.Encode(args)
}

// invoke decodes payload into the handler's declared argument types,
// calls the handler, and serializes its result. A panicking handler is
// recovered and turned into an error the same way a returned error
// would be — both become a failure reply one layer up.
func (m *methodAdapter) invoke(ctx context.Context, c codec.Codec, payload []byte) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else if s := fmt.Sprint(r); s != "" {
				err = errors.New(s)
			} else {
				err = errors.New("Unknown exception")
			}
		}
	}()

	argVals, err := decodeArgs(c, payload, m.argTypes)
	if err != nil {
		return nil, err
	}

	callArgs := make([]reflect.Value, 0, len(argVals)+1)
	if m.wantsCtx {
		callArgs = append(callArgs, reflect.ValueOf(ctx))
	}
	callArgs = append(callArgs, argVals...)

	results := m.fn.Call(callArgs)

	idx := 0
	var resultVal reflect.Value
	if m.hasResult {
		resultVal = results[idx]
		idx++
	}
	if m.hasError {
		if errVal := results[idx]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}

	if !m.hasResult {
		return []byte{}, nil
	}
	return c.Encode(resultVal.Interface())
}

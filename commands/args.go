package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/gorilla/schema"
)

// ErrInvalidArgs is returned when arguments cannot be decoded or fail
// validation.
var ErrInvalidArgs = errors.New("invalid arguments")

// Args are the undecoded arguments of a call.
type Args interface {
	Decode(dst any) error
}

// NoArgs decodes into nothing, leaving dst at its defaults.
type NoArgs struct{}

// Decode fulfils Args.
func (NoArgs) Decode(dst any) error { return nil }

// JSONArgs are arguments sent as a json object. Byte slices are base64 encoded,
// as encoding/json expects.
type JSONArgs []byte

// Decode fulfils Args. An empty body leaves dst unchanged.
func (a JSONArgs) Decode(dst any) error {
	if len(bytes.TrimSpace(a)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(a))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after json object", ErrInvalidArgs)
	}
	return nil
}

// FormArgs are arguments sent as url encoded form values. Field names follow
// the json tags of dst, so the same argument struct serves both encodings.
type FormArgs url.Values

// Decode fulfils Args.
func (a FormArgs) Decode(dst any) error {
	if err := newSchemaDecoder().Decode(dst, url.Values(a)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

// newSchemaDecoder creates a new schema.Decoder reading json tags, with a
// converter so []byte fields accept base64 values like encoding/json.
func newSchemaDecoder() *schema.Decoder {
	decoder := schema.NewDecoder()
	decoder.SetAliasTag("json")

	decoder.RegisterConverter([]byte{}, func(value string) reflect.Value {
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return reflect.Value{} // reported by the decoder as a conversion error
		}
		return reflect.ValueOf(b)
	})

	return decoder
}

// ------------------------------------------------------------------------------
// Validation
// ------------------------------------------------------------------------------

// Validator holds a map of validation errors, keyed by the argument name.
type Validator struct {
	Errors map[string]string
}

// NewValidator creates a new, initialized Validator.
func NewValidator() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

// Valid returns true if the Errors map is empty.
func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// AddError adds an error message for key if one doesn't already exist.
func (v *Validator) AddError(key, message string) {
	if _, exists := v.Errors[key]; !exists {
		v.Errors[key] = message
	}
}

// Check records message against key if ok is false.
func (v *Validator) Check(ok bool, key, message string) {
	if !ok {
		v.AddError(key, message)
	}
}

// Err returns nil for a valid Validator, otherwise an ErrInvalidArgs error
// listing the failures in key order.
func (v *Validator) Err() error {
	if v.Valid() {
		return nil
	}
	keys := make([]string, 0, len(v.Errors))
	for k := range v.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + v.Errors[k]
	}
	return fmt.Errorf("%w: %s", ErrInvalidArgs, strings.Join(parts, "; "))
}

// Validatable arguments check themselves after decoding.
type Validatable interface {
	Validate(v *Validator)
}

// Typed adapts fn into a Handler which decodes the call arguments into a fresh
// T, runs its Validate method if it has one, and then calls fn.
func Typed[T any](fn func(ctx context.Context, call Call, args T) (any, error)) Handler {
	return func(ctx context.Context, call Call) (any, error) {
		var args T
		if call.Args != nil {
			if err := call.Args.Decode(&args); err != nil {
				return nil, err
			}
		}
		if va, ok := any(&args).(Validatable); ok {
			v := NewValidator()
			va.Validate(v)
			if err := v.Err(); err != nil {
				return nil, err
			}
		}
		return fn(ctx, call, args)
	}
}

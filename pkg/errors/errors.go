// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package errors defines the coded error vocabulary for auditlog. All
// errors crossing a package boundary carry a Code so callers can branch on
// machine-readable identity instead of message text.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeLevelRegisterDuplicate Code = "level.register.duplicate"
	CodeLevelResolveUnknown    Code = "level.resolve.unknown"

	CodeExtrasScopeExitOrder Code = "extras.scope.exit.order"

	CodeLoggingNotInitialized Code = "logging.init.not_initialized"

	CodeBridgeStateInvalid  Code = "bridge.state.invalid"
	CodeBridgeHookOccupied  Code = "bridge.hook.occupied"
	CodeBridgeDrainTimeout  Code = "bridge.drain.timeout"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"
	CodeConfigWatchFailure         Code = "config.watch.failure"

	// CodeInternalFailure is the fallback for errors that reach a coding
	// boundary without a more specific identity.
	CodeInternalFailure Code = "internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldLevel(value string) Attr {
	return Field("level", value)
}

func FieldLogger(value string) Attr {
	return Field("logger", value)
}

func FieldScopeID(value string) Attr {
	return Field("scope_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsDuplicate(err error) bool {
	return reason(CodeOf(err)) == "duplicate"
}

func IsUnknown(err error) bool {
	return reason(CodeOf(err)) == "unknown"
}

func IsScopeOrder(err error) bool {
	return HasCode(err, CodeExtrasScopeExitOrder)
}

func IsNotInitialized(err error) bool {
	return reason(CodeOf(err)) == "not_initialized"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func Join(errs ...error) error {
	return oops.Code(CodeInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}

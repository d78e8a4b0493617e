// Package status defines the failure taxonomy shared by the handoff protocol
// and the error-reporting hook the render driver exposes to the platform.
package status

import (
    "errors"
    "fmt"

    "go.uber.org/zap"
)

// Code classifies protocol failures. Codes are what gets reported through
// Reporter.SetError; callers match on the sentinel errors below.
type Code int

const (
    CodeOK Code = iota
    CodeResourceExhausted
    CodeInvalidHandle
    CodeUnsupportedNativeType
    CodeStaleBinding
    CodeBadSurface
    CodeInternal
)

func (c Code) String() string {
    switch c {
    case CodeOK:
        return "ok"
    case CodeResourceExhausted:
        return "resource-exhausted"
    case CodeInvalidHandle:
        return "invalid-handle"
    case CodeUnsupportedNativeType:
        return "unsupported-native-type"
    case CodeStaleBinding:
        return "stale-binding"
    case CodeBadSurface:
        return "bad-surface"
    default:
        return "internal"
    }
}

var (
    ErrResourceExhausted     = &Error{Code: CodeResourceExhausted, Msg: "resource exhausted"}
    ErrInvalidHandle         = &Error{Code: CodeInvalidHandle, Msg: "invalid transport handle"}
    ErrUnsupportedNativeType = &Error{Code: CodeUnsupportedNativeType, Msg: "unsupported native handle type"}
    ErrStaleBinding          = &Error{Code: CodeStaleBinding, Msg: "binding endpoint destroyed"}
    ErrBadSurface            = &Error{Code: CodeBadSurface, Msg: "invalid surface"}
)

// Error is a coded protocol failure. Two Errors match with errors.Is when
// their codes are equal, so wrapped details do not break sentinel checks.
type Error struct {
    Code Code
    Msg  string
}

func (e *Error) Error() string { return e.Code.String() + ": " + e.Msg }

func (e *Error) Is(target error) bool {
    var t *Error
    if !errors.As(target, &t) { return false }
    return t.Code == e.Code
}

// Errorf builds a coded error with a formatted message.
func Errorf(code Code, format string, args ...any) error {
    return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code carried by err. nil maps to CodeOK and uncoded
// errors to CodeInternal.
func CodeOf(err error) Code {
    if err == nil { return CodeOK }
    var e *Error
    if errors.As(err, &e) { return e.Code }
    return CodeInternal
}

// Reporter receives protocol violations, mirroring the driver's setError hook.
type Reporter interface {
    SetError(code Code, msg string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(code Code, msg string)

func (f ReporterFunc) SetError(code Code, msg string) { f(code, msg) }

// LogReporter writes reported errors to the global zap logger.
type LogReporter struct{}

func (LogReporter) SetError(code Code, msg string) {
    zap.L().Warn("protocol error", zap.String("code", code.String()), zap.String("msg", msg))
}

// Report sends err to r when both are non-nil.
func Report(r Reporter, err error) {
    if r == nil || err == nil { return }
    r.SetError(CodeOf(err), err.Error())
}

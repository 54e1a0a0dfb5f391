// Package apperr models engine and facade failures as a typed sum rather
// than ad-hoc fmt.Errorf strings, so the HTTP facade can map a failure to
// a status code without string-sniffing.
package apperr

import "fmt"

type Kind string

const (
	Connection   Kind = "CONNECTION"
	Database     Kind = "DATABASE"
	Validation   Kind = "VALIDATION"
	Unknown      Kind = "UNKNOWN"
	Timeout      Kind = "TIMEOUT"
	NotFound     Kind = "NOTFOUND"
	AlreadyExist Kind = "ALREADY_EXISTS"
	Unauthorized Kind = "UNAUTHORIZED"
	Server       Kind = "SERVER"
	Limit        Kind = "LIMIT"
)

// AppError is the only error type the engine and facade pass to each
// other; it carries the HTTP status directly so the facade never has to
// re-derive it from the message.
type AppError struct {
	StatusCode int
	Kind       Kind
	Message    string
	Params     map[string]any
	cause      error
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func new(status int, kind Kind, msg string, cause error) *AppError {
	return &AppError{StatusCode: status, Kind: kind, Message: msg, cause: cause}
}

func Validationf(format string, args ...any) *AppError {
	return new(400, Validation, fmt.Sprintf(format, args...), nil)
}

func LimitExceeded(format string, args ...any) *AppError {
	return new(400, Limit, fmt.Sprintf(format, args...), nil)
}

func Unauthorizedf(format string, args ...any) *AppError {
	return new(401, Unauthorized, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(format string, args ...any) *AppError {
	return new(404, NotFound, fmt.Sprintf(format, args...), nil)
}

func AlreadyExists(format string, args ...any) *AppError {
	return new(409, AlreadyExist, fmt.Sprintf(format, args...), nil)
}

// TimeoutPending is used for the melt "202, check back later" response
// path. The request is not an error in the conventional sense, but it
// cannot report success yet either.
func TimeoutPending(format string, args ...any) *AppError {
	return new(202, Timeout, fmt.Sprintf(format, args...), nil)
}

func Connectionf(cause error, format string, args ...any) *AppError {
	return new(500, Connection, fmt.Sprintf(format, args...), cause)
}

// ConnectionRejectedf is Connectionf's 400 variant, for a collaborator
// that answered but refused the request (an LNURL {status:"ERROR"}
// response, a mint error the client can't retry around). The caller
// made a well-formed call; the far end said no.
func ConnectionRejectedf(cause error, format string, args ...any) *AppError {
	return new(400, Connection, fmt.Sprintf(format, args...), cause)
}

func Databasef(cause error, format string, args ...any) *AppError {
	return new(500, Database, fmt.Sprintf(format, args...), cause)
}

func Serverf(cause error, format string, args ...any) *AppError {
	return new(500, Server, fmt.Sprintf(format, args...), cause)
}

func Unknownf(cause error, format string, args ...any) *AppError {
	return new(500, Unknown, fmt.Sprintf(format, args...), cause)
}

// WithParams attaches caller/request context for logging; it returns the
// same error with Params populated so call sites can chain it:
// apperr.Validationf("bad amount").WithParams(map[string]any{"reqId": id}).
func (e *AppError) WithParams(params map[string]any) *AppError {
	e.Params = params
	return e
}

// As extracts an *AppError from any error, the way the melt path needs
// to distinguish "the mint client returned a structured error" from "the
// mint client returned a bare Go error" (e.g. network failure).
func As(err error) (*AppError, bool) {
	ae, ok := err.(*AppError)
	return ae, ok
}

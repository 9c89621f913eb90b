package common

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrOutOfRange is returned, before any request is made, when a control value
// is outside what the device accepts.
var ErrOutOfRange = errors.New("value out of range")

// ErrorKind classifies a failed remote call.
type ErrorKind int

const (
	// ErrorKindTransient failures are worth retrying later (throttling, 5xx,
	// network errors).
	ErrorKindTransient ErrorKind = iota + 1
	// ErrorKindPermanent failures will not succeed on retry (bad input,
	// rejected credentials, unexpected 4xx).
	ErrorKindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransient:
		return "transient"
	case ErrorKindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// RemoteError is returned by the device clients whenever a call to a remote
// backend fails.
type RemoteError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" remote error")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Transient returns a transient RemoteError.
func Transient(status int, msg string, err error) *RemoteError {
	return &RemoteError{Kind: ErrorKindTransient, Status: status, Message: msg, Err: err}
}

// Permanent returns a permanent RemoteError.
func Permanent(status int, msg string, err error) *RemoteError {
	return &RemoteError{Kind: ErrorKindPermanent, Status: status, Message: msg, Err: err}
}

// IsTransient reports whether err wraps a transient RemoteError.
func IsTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == ErrorKindTransient
}

// IsPermanent reports whether err wraps a permanent RemoteError.
func IsPermanent(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == ErrorKindPermanent
}

// StatusError consumes and closes the response body and returns a RemoteError
// describing the unexpected status.
func StatusError(resp *http.Response) *RemoteError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	if IsRetryableStatus(resp.StatusCode) {
		return Transient(resp.StatusCode, msg, nil)
	}
	return Permanent(resp.StatusCode, msg, nil)
}

package remote

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind tags every failure a remote call can end in.
type Kind int

const (
	KindUnauthenticated Kind = iota + 1
	KindSessionExpired
	KindHTTP
	KindProtocol
	KindTransport
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrSessionExpired  = errors.New("session expired")
	ErrHTTP            = errors.New("http error")
	ErrProtocol        = errors.New("protocol error")
	ErrTransport       = errors.New("transport error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindSessionExpired:
		return ErrSessionExpired
	case KindHTTP:
		return ErrHTTP
	case KindProtocol:
		return ErrProtocol
	case KindTransport:
		return ErrTransport
	}
	return nil
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return "ok"
}

// Error is the single error type returned by Client. errors.Is matches it
// against the kind sentinels above.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s %d: %s", e.Op, e.Kind, e.Status, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// UserMessage is a short sentence suitable for showing to the user.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindUnauthenticated:
		return "You are not signed in."
	case KindSessionExpired:
		return "Session expired. Please sign in again."
	case KindHTTP:
		if e.Message != "" {
			return e.Message
		}
		return fmt.Sprintf("Request failed (%d %s).", e.Status, http.StatusText(e.Status))
	case KindProtocol:
		return "Unexpected response from the server."
	case KindTransport:
		return "Could not reach the server. Check your connection."
	}
	return "Something went wrong."
}

// KindOf returns the kind of err, or 0 when err is nil or not from this
// package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// UserMessage renders any error for display.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

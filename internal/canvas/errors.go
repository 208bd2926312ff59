package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mediasite-provisioning/internal/httpx"
)

type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindStatus
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "transport"
	}
}

// ServiceError is returned by every Client call that fails.
type ServiceError struct {
	Op            string
	Kind          ErrorKind
	StatusCode    int
	RemoteMessage string
	Err           error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "canvas: %s", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status=%d", e.StatusCode)
	}
	if e.RemoteMessage != "" {
		fmt.Fprintf(&b, ": %s", e.RemoteMessage)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Unauthorized reports whether the user's token was rejected and the user
// must go through OAuth again.
func (e *ServiceError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsUnauthorized reports whether err carries a Canvas 401.
func IsUnauthorized(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Unauthorized()
}

var ErrSearchTermTooShort = errors.New("canvas: search term must be at least 3 characters")

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	out := &ServiceError{Op: op, Kind: KindTransport, Err: err}

	var herr *httpx.HTTPError
	var derr *httpx.DecodeError
	switch {
	case errors.As(err, &herr):
		out.Kind = KindStatus
		out.StatusCode = herr.StatusCode
		out.RemoteMessage = remoteMessage(herr.Body)
	case errors.As(err, &derr):
		out.Kind = KindDecode
	}
	return out
}

// remoteMessage pulls the message out of Canvas's error envelopes:
// {"errors":[{"message":"..."}]} or {"message":"..."}.
func remoteMessage(body []byte) string {
	var env struct {
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if len(env.Errors) > 0 && env.Errors[0].Message != "" {
		return env.Errors[0].Message
	}
	return env.Message
}

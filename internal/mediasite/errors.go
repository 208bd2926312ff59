package mediasite

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

// ServiceError is returned by every Client call that fails on the wire.
type ServiceError struct {
	Op            string
	Kind          ErrorKind
	StatusCode    int
	RemoteMessage string
	Err           error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mediasite: %s", e.Op)
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

func (e *ServiceError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

var (
	// ErrRoleConflict matches every *RoleConflictError.
	ErrRoleConflict = errors.New("mediasite: role conflict")

	ErrAmbiguousModule  = errors.New("mediasite: more than one module matches")
	ErrInvalidProfileID = errors.New("mediasite: profile id is not a uuid")
)

// RoleConflictError means a role named Name exists under a different
// directory entry. Roles cannot be renamed or deleted through the API, so
// someone has to remove the existing role by hand.
type RoleConflictError struct {
	Name           string
	DirectoryEntry string
	Existing       Role
}

func (e *RoleConflictError) Error() string {
	return fmt.Sprintf("mediasite: a role named %q already exists with directory entry %q (wanted %q); delete it manually before provisioning again",
		e.Name, e.Existing.DirectoryEntry, e.DirectoryEntry)
}

func (e *RoleConflictError) Is(target error) bool { return target == ErrRoleConflict }

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

// remoteMessage extracts odata.error.message.value.
func remoteMessage(body []byte) string {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message struct {
				Value string `json:"value"`
			} `json:"message"`
		} `json:"odata.error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Error.Message.Value
}

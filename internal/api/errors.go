package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Backend error codes that the client reacts to.
const (
	CodeSuccess     = 0
	CodeParams      = 40000
	CodeNotLoggedIn = 40100
	CodeNoAuth      = 40101
	CodeNotFound    = 40400
)

// ErrNoRefreshToken is returned when a refresh is needed but no refresh
// token is stored.
var ErrNoRefreshToken = errors.New("not logged in: no refresh token")

// Error is a non-2xx response, or a 2xx response whose envelope carries a
// non-zero code.
type Error struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Status != 0 {
		msg = http.StatusText(e.Status)
	}
	switch {
	case e.Status != 0 && e.Code != 0:
		return fmt.Sprintf("api error %d (code %d): %s", e.Status, e.Code, msg)
	case e.Status != 0:
		return fmt.Sprintf("api error %d: %s", e.Status, msg)
	default:
		return fmt.Sprintf("api error (code %d): %s", e.Code, msg)
	}
}

// NotLoggedIn reports whether the backend rejected the access token.
func (e *Error) NotLoggedIn() bool {
	return e.Status == http.StatusUnauthorized && e.Code == CodeNotLoggedIn
}

// IsNotLoggedIn reports whether err means the user must log in again.
func IsNotLoggedIn(err error) bool {
	if errors.Is(err, ErrNoRefreshToken) {
		return true
	}
	var apiErr *Error
	return errors.As(err, &apiErr) && (apiErr.Code == CodeNotLoggedIn || apiErr.Status == http.StatusUnauthorized)
}

// readError consumes and closes resp.Body.
func readError(resp *http.Response) *Error {
	defer func() { _ = resp.Body.Close() }()

	apiErr := &Error{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

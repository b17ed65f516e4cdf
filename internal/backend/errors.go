package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const tokenExpiredMessage = "Token has expired"

var (
	// ErrTokenExpired matches refresh failures the backend reports as
	// "Token has expired".
	ErrTokenExpired = errors.New("backend: token has expired")
	// ErrMaintenance is returned while the backend answers 503.
	ErrMaintenance = errors.New("backend: under maintenance")
	// ErrNoToken is returned when a call is attempted without a token.
	ErrNoToken = errors.New("backend: no token")
	// ErrReloginFailed wraps the failure of a silent re-login.
	ErrReloginFailed = errors.New("backend: relogin failed")
)

// transientAuthMessages are backend auth failures cured by logging in again.
var transientAuthMessages = []string{
	"user_lookup returned None",
	"Error loading the user",
	"Invalid header",
	"Signature has expired",
}

func isTransientAuth(msg string) bool {
	for _, m := range transientAuthMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// RPCError is a non-successful backend answer.
type RPCError struct {
	Status  int
	Method  string
	Message string
}

func (e *RPCError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("backend %s: status %d: %s", e.Method, e.Status, e.Message)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

func (e *RPCError) Is(target error) bool {
	return target == ErrTokenExpired && e.Message == tokenExpiredMessage
}

// errorMessage digs the human readable message out of the error payload
// shapes the backend uses.
func errorMessage(body []byte) string {
	var payload struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
		Error   *struct {
			Message string `json:"message"`
			Data    *struct {
				Message string `json:"message"`
			} `json:"data"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	switch {
	case payload.Error != nil && payload.Error.Data != nil && payload.Error.Data.Message != "":
		return payload.Error.Data.Message
	case payload.Error != nil && payload.Error.Message != "":
		return payload.Error.Message
	case payload.Message != "":
		return payload.Message
	}
	return payload.Msg
}

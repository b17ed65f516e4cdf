package models

import "fmt"

type UserRole string

const (
	RoleUser    UserRole = "user"
	RoleManager UserRole = "manager"
)

func ParseRole(s string) (UserRole, error) {
	switch UserRole(s) {
	case RoleUser, RoleManager:
		return UserRole(s), nil
	case "client", "":
		// "client" is the backend namespace name for end customers
		return RoleUser, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Namespace is the backend JSON-RPC namespace serving the role.
func (r UserRole) Namespace() string {
	if r == RoleManager {
		return "manager"
	}
	return "client"
}

// LoginPath is where a tab is sent after an unrecoverable session failure.
func (r UserRole) LoginPath() string {
	if r == RoleManager {
		return "/manager/login"
	}
	return "/"
}

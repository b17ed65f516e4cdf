// Package session owns the per-tab authentication state: the session
// record, its persistence keyed by role, token refresh scheduling and the
// mirroring of changes made by other tabs.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"fleet-dashboard/internal/backend"
	"fleet-dashboard/internal/models"
)

var (
	ErrNoSession     = errors.New("session: no active session")
	ErrNoCredentials = errors.New("session: no cached credentials")
	ErrClosed        = errors.New("session: manager closed")
	// ErrStale is returned when a backend answer arrives after the session
	// it was requested for has changed or been torn down.
	ErrStale = errors.New("session: result discarded, session changed")
)

// Record is the in-memory session of one tab. Password is plaintext here
// and sealed whenever the record is written to storage.
type Record struct {
	Token    string          `json:"token"`
	Username string          `json:"username"`
	Password string          `json:"password,omitempty"`
	Role     models.UserRole `json:"role"`
	Customer string          `json:"customer,omitempty"`
	Manager  string          `json:"manager,omitempty"`
}

// merge overlays the non-empty fields of patch onto r.
func (r Record) merge(patch Record) Record {
	if patch.Token != "" {
		r.Token = patch.Token
	}
	if patch.Username != "" {
		r.Username = patch.Username
	}
	if patch.Password != "" {
		r.Password = patch.Password
	}
	if patch.Role != "" {
		r.Role = patch.Role
	}
	if patch.Customer != "" {
		r.Customer = patch.Customer
	}
	if patch.Manager != "" {
		r.Manager = patch.Manager
	}
	if r.Role == "" {
		r.Role = models.RoleUser
	}
	return r
}

// scoped drops the identifier that does not belong to the record's role.
func (r Record) scoped() Record {
	if r.Role == models.RoleManager {
		r.Customer = ""
	} else {
		r.Manager = ""
	}
	return r
}

// Public is the record without its password.
func (r Record) Public() Record {
	r.Password = ""
	return r.scoped()
}

func (r Record) Credentials() backend.Credentials {
	return backend.Credentials{
		Username: r.Username,
		Password: r.Password,
		Customer: r.Customer,
		Manager:  r.Manager,
	}
}

// encode serializes r for storage with the password sealed.
func (r Record) encode(s *Sealer) ([]byte, error) {
	stored := r.scoped()
	if stored.Password != "" {
		sealed, err := s.Seal(stored.Password)
		if err != nil {
			return nil, err
		}
		stored.Password = sealed
	}
	return json.Marshal(stored)
}

func decodeRecord(raw []byte, s *Sealer) (Record, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("decode session record: %w", err)
	}
	if r.Password != "" {
		plain, err := s.Open(r.Password)
		if err != nil {
			return Record{}, err
		}
		r.Password = plain
	}
	if r.Role == "" {
		r.Role = models.RoleUser
	}
	return r.scoped(), nil
}

// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 64

var (
	ErrNameTooLong = errors.New("display name too long")
)

// Identity is the opaque {id, name} pair issued by the auth service.
// The signaling core never interprets ID beyond equality.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AnonymousName generates a fallback label for joins that carry no
// display name. A missing name never rejects a join.
func AnonymousName() string {
	return "guest-" + uuid.NewString()[:8]
}

func ValidateName(name string) error {
	if len(name) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	return nil
}

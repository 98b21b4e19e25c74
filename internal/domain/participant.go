package domain

import (
	"errors"
	"time"
)

const MaxRoomIDLen = 64

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

type (
	// RoomID is an opaque client-chosen identifier, treated as a shared
	// secret. Equality is the only operation the server performs on it.
	RoomID string

	// ConnID identifies one live signaling connection. Unique for the
	// lifetime of the process, never reused after disconnect.
	ConnID string
)

func ValidateRoomID(id RoomID) error {
	if id == "" {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return ErrRoomIDTooLong
	}
	return nil
}

// Participant is the room store's record of one present member.
// The store exclusively owns these; everyone else gets copies.
type Participant struct {
	Conn       ConnID    `json:"id"`
	Name       string    `json:"name"`
	HandRaised bool      `json:"handRaised"`
	JoinedAt   time.Time `json:"-"`
}

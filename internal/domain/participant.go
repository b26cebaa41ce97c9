// Package domain contains entities without logic, just meta-data.
package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MaxDisplayNameLen = 36
	MaxRoomIDLen      = 36
)

// Identity is the stable id of an account, independent of any single
// connection. Guests get a random one per session.
type Identity string

func NewGuestIdentity() Identity {
	return Identity(uuid.NewString())
}

// Participant is the session-scoped view of one member of one room.
// It exists from successful admission until disconnect or kick.
type Participant struct {
	DisplayName string    `json:"displayName"`
	Identity    Identity  `json:"identity"`
	IsAdmin     bool      `json:"isAdmin"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(displayName string, identity Identity) (*Participant, error) {
	if len(displayName) == 0 {
		return nil, ErrNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrNameTooLong
	}
	if identity == "" {
		identity = NewGuestIdentity()
	}
	return &Participant{
		DisplayName: displayName,
		Identity:    identity,
		JoinedAt:    time.Now(),
	}, nil
}

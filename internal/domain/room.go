package domain

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type RoomID string

type RoomKind int

const (
	// RoomEphemeral exists only while at least one participant is present.
	RoomEphemeral RoomKind = iota
	// RoomPermanent keeps its identity and admin/invite lists regardless
	// of occupancy.
	RoomPermanent
)

func (k RoomKind) String() string {
	if k == RoomPermanent {
		return "permanent"
	}
	return "ephemeral"
}

// Room is the bookkeeping entity for one named room. Membership itself lives
// in the registry; the room carries identity, policy and the admin/invite sets.
type Room struct {
	ID           RoomID
	Kind         RoomKind
	PasswordHash []byte
	Capacity     int
	Creator      Identity
	InviteOnly   bool
	Admins       map[Identity]struct{}
	Invited      map[Identity]struct{}
	CreatedAt    time.Time
}

func NewRoom(id RoomID, kind RoomKind, creator Identity) *Room {
	return &Room{
		ID:        id,
		Kind:      kind,
		Creator:   creator,
		Admins:    make(map[Identity]struct{}),
		Invited:   make(map[Identity]struct{}),
		CreatedAt: time.Now(),
	}
}

func (r *Room) RequiresPassword() bool { return len(r.PasswordHash) > 0 }

func (r *Room) CheckPassword(password string) bool {
	if !r.RequiresPassword() {
		return true
	}
	return bcrypt.CompareHashAndPassword(r.PasswordHash, []byte(password)) == nil
}

func (r *Room) SetPassword(password string) error {
	if password == "" {
		r.PasswordHash = nil
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	r.PasswordHash = hash
	return nil
}

func (r *Room) IsAdmin(id Identity) bool {
	if id == "" {
		return false
	}
	if id == r.Creator {
		return true
	}
	_, ok := r.Admins[id]
	return ok
}

func (r *Room) IsInvited(id Identity) bool {
	if !r.InviteOnly {
		return true
	}
	if id == "" {
		return false
	}
	if id == r.Creator {
		return true
	}
	if _, ok := r.Admins[id]; ok {
		return true
	}
	_, ok := r.Invited[id]
	return ok
}

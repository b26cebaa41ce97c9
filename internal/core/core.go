// Package core holds the small set of types the registry, admission and
// relay layers share. Transports are owned by adapters; core only sees the
// SignalConnection interface.
package core

import "github.com/okutsev/huddle/internal/domain"

// Frame is a raw serialized signaling payload.
type Frame []byte

// SID is the connection handle of one signaling connection. A SID belongs
// to at most one room at a time.
type SID string

// SignalConnection abstracts the per-participant messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Member binds a domain.Participant to its signaling endpoint. This is
// what a room stores and fans out to.
type Member struct {
	SID  SID
	Meta *domain.Participant
	Conn SignalConnection
}

func NewMember(sid SID, meta *domain.Participant, conn SignalConnection) *Member {
	return &Member{SID: sid, Meta: meta, Conn: conn}
}

// ParticipantDTO is a read-only view for events and APIs (no transport fields).
type ParticipantDTO struct {
	Identity    domain.Identity `json:"identity"`
	DisplayName string          `json:"displayName"`
	IsAdmin     bool            `json:"isAdmin"`
}

func DTOOf(m *Member) ParticipantDTO {
	return ParticipantDTO{
		Identity:    m.Meta.Identity,
		DisplayName: m.Meta.DisplayName,
		IsAdmin:     m.Meta.IsAdmin,
	}
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped []*Member
}

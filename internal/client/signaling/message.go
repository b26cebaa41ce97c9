package signaling

import (
	"github.com/okutsev/huddle/internal/core"
	"github.com/okutsev/huddle/internal/domain"
)

// Message is the wire envelope between client and signaling server. One
// struct covers every event; Type selects which fields are meaningful.
type Message struct {
	Type string `json:"type"`

	Room     string `json:"room,omitempty"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
	Identity string `json:"identity,omitempty"`
	Target   string `json:"target,omitempty"`

	From     string `json:"from,omitempty"`
	FromName string `json:"fromName,omitempty"`

	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`

	IsSharing bool             `json:"isSharing,omitempty"`
	ShareKind domain.ShareKind `json:"shareKind,omitempty"`
	Username  string           `json:"username,omitempty"`

	Kind    string                           `json:"kind,omitempty"`
	Self    *core.ParticipantDTO             `json:"self,omitempty"`
	User    *core.ParticipantDTO             `json:"user,omitempty"`
	Users   []core.ParticipantDTO            `json:"users,omitempty"`
	Shares  []domain.ScreenShareAnnouncement `json:"shares,omitempty"`
	Reason  string                           `json:"reason,omitempty"`
	Message string                           `json:"message,omitempty"`
}

// Message type constants, mirroring the server's envelope dispatch.
const (
	TypeJoinRoom     = "join-room"
	TypeLeave        = "leave"
	TypeKickUser     = "kick-user"
	TypePromoteUser  = "promote-user"
	TypeDemoteUser   = "demote-user"
	TypeCreateRoom   = "create-permanent-room"
	TypeDeleteRoom   = "delete-permanent-room"
	TypeGetRoomInfo  = "get-room-info"
	TypePing         = "ping"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeCandidate    = "ice-candidate"
	TypeShareStarted = "screen-share-started"
	TypeShareStopped = "screen-share-stopped"

	TypeAllUsers       = "all-users"
	TypeUserJoined     = "user-joined"
	TypeUserLeft       = "user-left"
	TypeRoomFull       = "room-full"
	TypeJoinError      = "join-error"
	TypePromoted       = "promoted-to-admin"
	TypeDemoted        = "demoted-from-admin"
	TypeKicked         = "kicked-from-room"
	TypeUserSharing    = "user-screen-sharing"
	TypeInitialSharing = "initial-screen-sharing-state"
	TypeLeft           = "left"
	TypeError          = "error"
	TypePong           = "pong"
)

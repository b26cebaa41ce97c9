package relay

import (
	"encoding/json"
	"fmt"

	"github.com/okutsev/huddle/internal/domain"
)

// Kind is the closed set of relayed signaling message kinds. Dispatch is an
// exhaustive switch over this set; an unknown kind never reaches a handler.
type Kind string

const (
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindCandidate    Kind = "ice-candidate"
	KindShareStarted Kind = "screen-share-started"
	KindShareStopped Kind = "screen-share-stopped"
)

// Message is the sealed union of relayed payloads. The relay routes them by
// room + target identity and never interprets the SDP or candidate contents.
type Message interface {
	kind() Kind
}

type Offer struct {
	SDP string `json:"sdp"`
}

type Answer struct {
	SDP string `json:"sdp"`
}

type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type ShareState struct {
	IsSharing bool             `json:"isSharing"`
	ShareKind domain.ShareKind `json:"shareKind,omitempty"`
}

func (Offer) kind() Kind     { return KindOffer }
func (Answer) kind() Kind    { return KindAnswer }
func (Candidate) kind() Kind { return KindCandidate }

func (s ShareState) kind() Kind {
	if s.IsSharing {
		return KindShareStarted
	}
	return KindShareStopped
}

// Decode parses the opaque payload for a known kind into its union member.
func Decode(k Kind, payload []byte) (Message, error) {
	switch k {
	case KindOffer:
		var m Offer
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode offer: %w", err)
		}
		return m, nil
	case KindAnswer:
		var m Answer
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		return m, nil
	case KindCandidate:
		var m Candidate
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode candidate: %w", err)
		}
		return m, nil
	case KindShareStarted:
		var m ShareState
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode share state: %w", err)
		}
		m.IsSharing = true
		return m, nil
	case KindShareStopped:
		return ShareState{IsSharing: false}, nil
	default:
		return nil, fmt.Errorf("unknown signal kind %q", k)
	}
}

package peerlink

// State is the negotiation state of one link.
//
// Offerer path:  Idle -> Offering -> Connected -> (Failed|Closed)
// Answerer path: Idle -> OfferReceived -> Connected -> (Failed|Closed)
type State int32

const (
	StateIdle State = iota
	StateOffering
	StateOfferReceived
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateOfferReceived:
		return "offer_received"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role decides which side initiates. The side already in the room answers;
// the newly joined side offers. That rule alone prevents glare for any pair.
type Role int

const (
	RoleOfferer Role = iota
	RoleAnswerer
)

func (r Role) String() string {
	if r == RoleAnswerer {
		return "answerer"
	}
	return "offerer"
}

// Source names what the outbound video track currently carries.
type Source string

const (
	SourceCamera Source = "camera"
	SourceScreen Source = "screen"
)

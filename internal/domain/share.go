package domain

type ShareKind string

const (
	ShareKindScreen ShareKind = "screen"
	ShareKindWindow ShareKind = "window"
)

// ScreenShareAnnouncement is last-writer-wins broadcast state. It never
// touches negotiation: the media swap happens in place on the transport,
// this only tells peers what the video now means.
type ScreenShareAnnouncement struct {
	Identity  Identity  `json:"identity"`
	Username  string    `json:"username"`
	IsSharing bool      `json:"isSharing"`
	ShareKind ShareKind `json:"shareKind,omitempty"`
}

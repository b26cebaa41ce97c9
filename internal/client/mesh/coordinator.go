// Package mesh keeps exactly one peer link per remote participant. The
// coordinator is the sole mutator of the link set: membership events drive
// link creation and teardown, links themselves negotiate independently.
package mesh

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/client/peerlink"
	"github.com/okutsev/huddle/internal/client/signaling"
	"github.com/okutsev/huddle/internal/core"
	"github.com/okutsev/huddle/internal/domain"
)

// Sender is the outbound half of the signaling channel.
type Sender interface {
	Send(*signaling.Message)
}

// TransportFactory builds a fresh transport for one remote peer with the
// local media attached. Called again on link restart.
type TransportFactory func(remote domain.Identity, audio, video webrtc.TrackLocal) (peerlink.Transport, error)

type Config struct {
	Sender             Sender
	NewTransport       TransportFactory
	NegotiationTimeout time.Duration
	CandidateQueueCap  int
	// MaxRestarts bounds coordinator-driven retries of a failed link before
	// that one pairing is shown as disconnected.
	MaxRestarts int
	// OnRemoteShare is the render-layer hook for screen-share announcements.
	OnRemoteShare func(domain.ScreenShareAnnouncement)
	// OnPeerGone is the render-layer hook for removing a peer's tiles.
	OnPeerGone func(domain.Identity)
}

type Coordinator struct {
	cfg    Config
	logger zerolog.Logger

	// handleMu serializes event handling: queued-event replay and live
	// events go through it in order, so a live event can never overtake
	// an older queued one.
	handleMu sync.Mutex

	mu         sync.Mutex
	self       core.ParticipantDTO
	links      map[domain.Identity]*peerlink.Link
	shares     map[domain.Identity]domain.ScreenShareAnnouncement
	restarts   map[domain.Identity]int
	mediaReady bool
	localAudio webrtc.TrackLocal
	localVideo webrtc.TrackLocal
	sharing    bool
	shareTrack webrtc.TrackLocal
	// Media acquisition is user-consent-gated and slow; signaling that
	// arrives before it finishes is queued here, never dropped.
	pendingEvents []*signaling.Message
}

func NewCoordinator(cfg Config) *Coordinator {
	if cfg.MaxRestarts < 0 {
		cfg.MaxRestarts = 0
	}
	return &Coordinator{
		cfg:      cfg,
		logger:   log.With().Str("module", "mesh").Logger(),
		links:    make(map[domain.Identity]*peerlink.Link),
		shares:   make(map[domain.Identity]domain.ScreenShareAnnouncement),
		restarts: make(map[domain.Identity]int),
	}
}

// Run drains the signaling event stream until the context ends or the
// channel closes. Handlers for one local participant are serialized here;
// the links negotiate on their own.
func (c *Coordinator) Run(ctx context.Context, incoming <-chan *signaling.Message) {
	defer c.TeardownAll()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				return
			}
			c.HandleEvent(msg)
		}
	}
}

// SetLocalMedia attaches the acquired local sources and replays everything
// that was queued while the user was deciding about camera permissions.
// handleMu is held across the flip and the whole replay, so events arriving
// concurrently wait behind the queued ones instead of overtaking them.
func (c *Coordinator) SetLocalMedia(audio, video webrtc.TrackLocal) {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	c.mu.Lock()
	c.localAudio = audio
	c.localVideo = video
	c.mediaReady = true
	queued := c.pendingEvents
	c.pendingEvents = nil
	c.mu.Unlock()

	for _, msg := range queued {
		c.dispatch(msg)
	}
}

// HandleEvent processes one server event.
func (c *Coordinator) HandleEvent(msg *signaling.Message) {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	c.mu.Lock()
	if !c.mediaReady {
		c.pendingEvents = append(c.pendingEvents, msg)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.dispatch(msg)
}

func (c *Coordinator) dispatch(msg *signaling.Message) {
	switch msg.Type {
	case signaling.TypeAllUsers:
		if msg.Self != nil {
			c.mu.Lock()
			c.self = *msg.Self
			c.mu.Unlock()
		}
		// The joiner offers toward everyone already present.
		for _, u := range msg.Users {
			c.ensureLink(u.Identity, peerlink.RoleOfferer)
		}
	case signaling.TypeUserJoined:
		if msg.User != nil {
			// The established side waits passively for the newcomer's offer.
			c.ensureLink(msg.User.Identity, peerlink.RoleAnswerer)
		}
	case signaling.TypeUserLeft:
		c.dropPeer(domain.Identity(msg.Identity))
	case signaling.TypeOffer:
		if l, ok := c.link(domain.Identity(msg.From)); ok {
			l.HandleOffer(msg.SDP)
		} else {
			c.logger.Warn().Str("from", msg.From).Msg("offer from unknown peer, dropped")
		}
	case signaling.TypeAnswer:
		if l, ok := c.link(domain.Identity(msg.From)); ok {
			l.HandleAnswer(msg.SDP)
		}
	case signaling.TypeCandidate:
		if l, ok := c.link(domain.Identity(msg.From)); ok {
			l.HandleCandidate(webrtc.ICECandidateInit{
				Candidate:     msg.Candidate,
				SDPMid:        msg.SDPMid,
				SDPMLineIndex: msg.SDPMLineIndex,
			})
		}
	case signaling.TypeUserSharing:
		ann := domain.ScreenShareAnnouncement{
			Identity:  domain.Identity(msg.Identity),
			Username:  msg.Username,
			IsSharing: msg.IsSharing,
			ShareKind: msg.ShareKind,
		}
		c.recordShare(ann)
	case signaling.TypeInitialSharing:
		for _, ann := range msg.Shares {
			c.recordShare(ann)
		}
	case signaling.TypeKicked:
		c.logger.Info().Str("message", msg.Message).Msg("removed from room")
		c.TeardownAll()
	}
}

// ensureLink creates the link toward remote if none exists. Idempotent:
// a repeated membership event never produces a duplicate link.
func (c *Coordinator) ensureLink(remote domain.Identity, role peerlink.Role) {
	c.mu.Lock()
	if remote == c.self.Identity {
		c.mu.Unlock()
		return
	}
	if _, ok := c.links[remote]; ok {
		c.mu.Unlock()
		return
	}
	audio, video := c.localAudio, c.localVideo
	c.mu.Unlock()

	tr, err := c.cfg.NewTransport(remote, audio, video)
	if err != nil {
		c.logger.Error().Err(err).Str("remote", string(remote)).Msg("transport create failed")
		return
	}
	l := peerlink.New(peerlink.Config{
		Remote:             remote,
		Role:               role,
		Transport:          tr,
		Signaler:           (*coordSignaler)(c),
		NegotiationTimeout: c.cfg.NegotiationTimeout,
		CandidateQueueCap:  c.cfg.CandidateQueueCap,
		OnFailure:          c.onLinkFailure,
	})

	c.mu.Lock()
	if _, ok := c.links[remote]; ok {
		// Lost the race against another event for the same peer.
		c.mu.Unlock()
		l.Close()
		return
	}
	c.links[remote] = l
	sharing, screen := c.sharing, c.shareTrack
	c.mu.Unlock()

	c.logger.Info().Str("remote", string(remote)).Str("role", role.String()).Msg("peer link created")
	l.MediaReady()
	if sharing {
		// A peer arriving mid-share must see the screen, not the camera.
		// The link queues the swap until it is connected.
		if err := l.SetOutbound(peerlink.SourceScreen, screen); err != nil {
			c.logger.Warn().Err(err).Str("remote", string(remote)).Msg("screen swap on new link failed")
		}
	}
}

func (c *Coordinator) link(remote domain.Identity) (*peerlink.Link, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.links[remote]
	return l, ok
}

func (c *Coordinator) dropPeer(remote domain.Identity) {
	c.mu.Lock()
	l, ok := c.links[remote]
	delete(c.links, remote)
	delete(c.shares, remote)
	delete(c.restarts, remote)
	c.mu.Unlock()
	if ok {
		l.Close()
		c.logger.Info().Str("remote", string(remote)).Msg("peer link closed")
	}
	if c.cfg.OnPeerGone != nil {
		c.cfg.OnPeerGone(remote)
	}
}

// onLinkFailure retries a failed link with a fresh transport, bounded by
// MaxRestarts. Exhausted retries remove just that pairing; the rest of the
// room is untouched.
func (c *Coordinator) onLinkFailure(remote domain.Identity, err error) {
	c.mu.Lock()
	l, ok := c.links[remote]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.restarts[remote]++
	attempts := c.restarts[remote]
	audio, video := c.localAudio, c.localVideo
	sharing, screen := c.sharing, c.shareTrack
	c.mu.Unlock()

	if attempts > c.cfg.MaxRestarts {
		c.logger.Warn().Err(err).Str("remote", string(remote)).Int("attempts", attempts-1).
			Msg("link retries exhausted, removing pairing")
		c.dropPeer(remote)
		return
	}

	tr, terr := c.cfg.NewTransport(remote, audio, video)
	if terr != nil {
		c.logger.Error().Err(terr).Str("remote", string(remote)).Msg("restart transport create failed")
		c.dropPeer(remote)
		return
	}
	if rerr := l.Restart(tr); rerr != nil {
		_ = tr.Close()
		return
	}
	if sharing {
		// The fresh transport carries the camera; re-apply the active share.
		if serr := l.SetOutbound(peerlink.SourceScreen, screen); serr != nil {
			c.logger.Warn().Err(serr).Str("remote", string(remote)).Msg("screen swap on restart failed")
		}
	}
	c.logger.Info().Str("remote", string(remote)).Int("attempt", attempts).Msg("link restarted")
}

func (c *Coordinator) recordShare(ann domain.ScreenShareAnnouncement) {
	c.mu.Lock()
	if ann.IsSharing {
		c.shares[ann.Identity] = ann
	} else {
		delete(c.shares, ann.Identity)
	}
	c.mu.Unlock()
	if c.cfg.OnRemoteShare != nil {
		c.cfg.OnRemoteShare(ann)
	}
}

// StartScreenShare swaps the outbound video on every link to the screen
// track and announces the semantic change over the side channel. Links not
// yet Connected queue the swap; negotiation state is never touched.
func (c *Coordinator) StartScreenShare(track webrtc.TrackLocal, kind domain.ShareKind) {
	c.mu.Lock()
	c.sharing = true
	c.shareTrack = track
	links := c.snapshotLocksLocked()
	c.mu.Unlock()

	for _, l := range links {
		if err := l.SetOutbound(peerlink.SourceScreen, track); err != nil {
			c.logger.Warn().Err(err).Str("remote", string(l.Remote())).Msg("screen swap failed")
		}
	}
	c.cfg.Sender.Send(&signaling.Message{Type: signaling.TypeShareStarted, IsSharing: true, ShareKind: kind})
}

// StopScreenShare restores the camera source on every link.
func (c *Coordinator) StopScreenShare() {
	c.mu.Lock()
	c.sharing = false
	c.shareTrack = nil
	camera := c.localVideo
	links := c.snapshotLocksLocked()
	c.mu.Unlock()

	for _, l := range links {
		if err := l.SetOutbound(peerlink.SourceCamera, camera); err != nil {
			c.logger.Warn().Err(err).Str("remote", string(l.Remote())).Msg("camera restore failed")
		}
	}
	c.cfg.Sender.Send(&signaling.Message{Type: signaling.TypeShareStopped})
}

// Peers reports the current link set with states, for the render layer and
// for checking mesh completeness.
func (c *Coordinator) Peers() map[domain.Identity]peerlink.State {
	c.mu.Lock()
	links := c.snapshotLocksLocked()
	c.mu.Unlock()
	out := make(map[domain.Identity]peerlink.State, len(links))
	for _, l := range links {
		out[l.Remote()] = l.State()
	}
	return out
}

// RemoteShares reports who is currently screen sharing.
func (c *Coordinator) RemoteShares() []domain.ScreenShareAnnouncement {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ScreenShareAnnouncement, 0, len(c.shares))
	for _, ann := range c.shares {
		out = append(out, ann)
	}
	return out
}

// TeardownAll closes every link (local leave or kick).
func (c *Coordinator) TeardownAll() {
	c.mu.Lock()
	links := c.snapshotLocksLocked()
	c.links = make(map[domain.Identity]*peerlink.Link)
	c.shares = make(map[domain.Identity]domain.ScreenShareAnnouncement)
	c.restarts = make(map[domain.Identity]int)
	c.mu.Unlock()
	for _, l := range links {
		l.Close()
		if c.cfg.OnPeerGone != nil {
			c.cfg.OnPeerGone(l.Remote())
		}
	}
}

func (c *Coordinator) snapshotLocksLocked() []*peerlink.Link {
	out := make([]*peerlink.Link, 0, len(c.links))
	for _, l := range c.links {
		out = append(out, l)
	}
	return out
}

// coordSignaler adapts the coordinator's sender to the peerlink.Signaler
// surface without an extra allocation per link.
type coordSignaler Coordinator

func (s *coordSignaler) SendOffer(remote domain.Identity, sdp string) {
	s.cfg.Sender.Send(&signaling.Message{Type: signaling.TypeOffer, Target: string(remote), SDP: sdp})
}

func (s *coordSignaler) SendAnswer(remote domain.Identity, sdp string) {
	s.cfg.Sender.Send(&signaling.Message{Type: signaling.TypeAnswer, Target: string(remote), SDP: sdp})
}

func (s *coordSignaler) SendCandidate(remote domain.Identity, c webrtc.ICECandidateInit) {
	s.cfg.Sender.Send(&signaling.Message{
		Type:          signaling.TypeCandidate,
		Target:        string(remote),
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}

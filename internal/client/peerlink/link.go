// Package peerlink drives offer/answer exchange, candidate buffering and
// in-call media swaps for one ordered pair of participants. Each link owns
// its transport exclusively; a link failing never touches its siblings.
package peerlink

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/domain"
)

var (
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrTransportFailed    = errors.New("transport failed")
)

const DefaultCandidateQueueCap = 64

// Transport is the media transport under one link. The pion implementation
// lives in internal/client/rtc; tests use a fake.
type Transport interface {
	// CreateOffer sets the local description and returns it.
	CreateOffer() (webrtc.SessionDescription, error)
	// AcceptOffer sets the remote description, creates the answer and sets
	// it as local description.
	AcceptOffer(webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// AcceptAnswer sets the remote description.
	AcceptAnswer(webrtc.SessionDescription) error
	AddRemoteCandidate(webrtc.ICECandidateInit) error
	// ReplaceVideo swaps the outbound video source in place, without
	// renegotiation.
	ReplaceVideo(webrtc.TrackLocal) error
	OnLocalCandidate(func(webrtc.ICECandidateInit))
	OnConnectionState(func(webrtc.PeerConnectionState))
	Close() error
}

// Signaler carries the link's outbound negotiation messages back through
// the signaling relay.
type Signaler interface {
	SendOffer(remote domain.Identity, sdp string)
	SendAnswer(remote domain.Identity, sdp string)
	SendCandidate(remote domain.Identity, c webrtc.ICECandidateInit)
}

type Config struct {
	Remote             domain.Identity
	Role               Role
	Transport          Transport
	Signaler           Signaler
	NegotiationTimeout time.Duration
	CandidateQueueCap  int
	// OnFailure is invoked outside the link's lock after the link reached
	// StateFailed; the coordinator decides between restart and removal.
	OnFailure func(remote domain.Identity, err error)
}

type Link struct {
	remote domain.Identity
	role   Role
	sig    Signaler
	logger zerolog.Logger

	mu            sync.Mutex
	state         State
	tr            Transport
	remoteDescSet bool
	mediaReady    bool
	pendingOffer  *webrtc.SessionDescription
	pending       []webrtc.ICECandidateInit
	pendingCap    int
	source        Source
	queuedVideo   webrtc.TrackLocal
	queuedSource  Source
	timeout       time.Duration
	timer         *time.Timer
	onFailure     func(domain.Identity, error)
}

func New(cfg Config) *Link {
	l := &Link{
		remote:     cfg.Remote,
		role:       cfg.Role,
		sig:        cfg.Signaler,
		state:      StateIdle,
		tr:         cfg.Transport,
		pendingCap: cfg.CandidateQueueCap,
		source:     SourceCamera,
		timeout:    cfg.NegotiationTimeout,
		onFailure:  cfg.OnFailure,
		logger: log.With().Str("module", "peerlink").
			Str("remote", string(cfg.Remote)).Str("role", cfg.Role.String()).Logger(),
	}
	if l.pendingCap <= 0 {
		l.pendingCap = DefaultCandidateQueueCap
	}
	l.bindTransport(cfg.Transport)
	return l
}

func (l *Link) Remote() domain.Identity { return l.remote }
func (l *Link) Role() Role              { return l.role }

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) Source() Source {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.source
}

// MediaReady marks local media as attached to the transport. Until then the
// link queues rather than drops: an offerer waits to offer, an answerer
// holds a received offer. Local media acquisition must never stall
// signaling about other peers, so this arrives asynchronously.
func (l *Link) MediaReady() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mediaReady {
		return
	}
	l.mediaReady = true
	switch {
	case l.role == RoleOfferer && l.state == StateIdle:
		l.createOfferLocked()
	case l.state == StateOfferReceived && l.pendingOffer != nil:
		offer := *l.pendingOffer
		l.pendingOffer = nil
		l.answerLocked(offer)
	}
}

// HandleOffer applies a remote offer. Valid only from Idle: an offer that
// arrives mid-negotiation is glare and is ignored, never overwriting state.
func (l *Link) HandleOffer(sdp string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateIdle {
		l.logger.Debug().Str("state", l.state.String()).Msg("offer outside idle ignored")
		return
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	l.setStateLocked(StateOfferReceived)
	l.startTimerLocked()
	if !l.mediaReady {
		l.pendingOffer = &offer
		return
	}
	l.answerLocked(offer)
}

// HandleAnswer applies a remote answer. Valid only while Offering.
func (l *Link) HandleAnswer(sdp string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOffering {
		l.logger.Debug().Str("state", l.state.String()).Msg("answer outside offering ignored")
		return
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := l.tr.AcceptAnswer(answer); err != nil {
		l.failLocked(err)
		return
	}
	l.remoteDescSet = true
	l.connectedLocked()
}

// HandleCandidate applies a remote candidate immediately once the remote
// description is set; before that it is enqueued in arrival order. The
// queue is bounded: overflow is a symptom of a stuck negotiation and the
// negotiation timer is what eventually fails the link.
func (l *Link) HandleCandidate(c webrtc.ICECandidateInit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateFailed || l.state == StateClosed {
		return
	}
	if l.remoteDescSet {
		if err := l.tr.AddRemoteCandidate(c); err != nil {
			l.logger.Warn().Err(err).Msg("candidate rejected by transport, dropped")
		}
		return
	}
	if len(l.pending) >= l.pendingCap {
		l.logger.Warn().Int("cap", l.pendingCap).Msg("candidate queue full, dropped")
		return
	}
	l.pending = append(l.pending, c)
}

// SetOutbound swaps the outbound video source in place. Valid only while
// Connected; requested earlier it is queued and applied on connect. No
// renegotiation happens either way.
func (l *Link) SetOutbound(src Source, track webrtc.TrackLocal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateFailed || l.state == StateClosed {
		return ErrTransportFailed
	}
	if l.state != StateConnected {
		l.queuedVideo = track
		l.queuedSource = src
		return nil
	}
	if err := l.tr.ReplaceVideo(track); err != nil {
		return err
	}
	l.source = src
	l.logger.Info().Str("source", string(src)).Msg("outbound video swapped")
	return nil
}

// Close tears the link down deliberately (peer left, room closed).
func (l *Link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return
	}
	l.setStateLocked(StateClosed)
	l.stopTimerLocked()
	_ = l.tr.Close()
}

// Restart discards the failed transport and re-runs the state machine from
// Idle with the same role. Valid only from Failed.
func (l *Link) Restart(tr Transport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateFailed {
		return errors.New("restart is only valid from the failed state")
	}
	l.tr = tr
	l.bindTransport(tr)
	l.remoteDescSet = false
	l.pendingOffer = nil
	l.pending = nil
	l.setStateLocked(StateIdle)
	if l.mediaReady && l.role == RoleOfferer {
		l.createOfferLocked()
	}
	return nil
}

func (l *Link) bindTransport(tr Transport) {
	tr.OnLocalCandidate(func(c webrtc.ICECandidateInit) {
		l.sig.SendCandidate(l.remote, c)
	})
	tr.OnConnectionState(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateDisconnected {
			l.Fail(ErrTransportFailed)
		}
	})
}

// Fail moves the link to Failed and tears down its transport only.
func (l *Link) Fail(err error) {
	l.mu.Lock()
	l.failLocked(err)
	l.mu.Unlock()
}

func (l *Link) createOfferLocked() {
	sdp, err := l.tr.CreateOffer()
	if err != nil {
		l.failLocked(err)
		return
	}
	l.setStateLocked(StateOffering)
	l.startTimerLocked()
	l.sig.SendOffer(l.remote, sdp.SDP)
}

func (l *Link) answerLocked(offer webrtc.SessionDescription) {
	answer, err := l.tr.AcceptOffer(offer)
	if err != nil {
		l.failLocked(err)
		return
	}
	l.remoteDescSet = true
	l.sig.SendAnswer(l.remote, answer.SDP)
	l.connectedLocked()
}

func (l *Link) connectedLocked() {
	l.setStateLocked(StateConnected)
	l.stopTimerLocked()
	l.flushPendingLocked()
	if l.queuedVideo != nil {
		if err := l.tr.ReplaceVideo(l.queuedVideo); err == nil {
			l.source = l.queuedSource
		} else {
			l.logger.Warn().Err(err).Msg("queued video swap failed")
		}
		l.queuedVideo = nil
	}
}

func (l *Link) flushPendingLocked() {
	for _, c := range l.pending {
		if err := l.tr.AddRemoteCandidate(c); err != nil {
			l.logger.Warn().Err(err).Msg("buffered candidate rejected, dropped")
		}
	}
	l.pending = nil
}

func (l *Link) failLocked(err error) {
	if l.state == StateFailed || l.state == StateClosed {
		return
	}
	l.logger.Warn().Err(err).Str("state", l.state.String()).Msg("link failed")
	l.setStateLocked(StateFailed)
	l.stopTimerLocked()
	_ = l.tr.Close()
	if l.onFailure != nil {
		// Outside the lock: the coordinator may call back into the link.
		go l.onFailure(l.remote, err)
	}
}

func (l *Link) setStateLocked(s State) {
	l.logger.Debug().Str("from", l.state.String()).Str("to", s.String()).Msg("transition")
	l.state = s
}

func (l *Link) startTimerLocked() {
	if l.timeout <= 0 {
		return
	}
	l.stopTimerLocked()
	l.timer = time.AfterFunc(l.timeout, func() {
		l.mu.Lock()
		stuck := l.state == StateOffering || l.state == StateOfferReceived
		if stuck {
			l.failLocked(ErrNegotiationTimeout)
		}
		l.mu.Unlock()
	})
}

func (l *Link) stopTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

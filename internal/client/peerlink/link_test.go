package peerlink

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okutsev/huddle/internal/domain"
)

type fakeTransport struct {
	mu       sync.Mutex
	offers   int
	answers  int
	applied  []webrtc.ICECandidateInit
	replaced []webrtc.TrackLocal
	closed   bool
	offerErr error
	onICE    func(webrtc.ICECandidateInit)
	onState  func(webrtc.PeerConnectionState)
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offerErr != nil {
		return webrtc.SessionDescription{}, f.offerErr
	}
	f.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 local-offer"}, nil
}

func (f *fakeTransport) AcceptOffer(webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 local-answer"}, nil
}

func (f *fakeTransport) AcceptAnswer(webrtc.SessionDescription) error { return nil }

func (f *fakeTransport) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, c)
	return nil
}

func (f *fakeTransport) ReplaceVideo(track webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, track)
	return nil
}

func (f *fakeTransport) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }

func (f *fakeTransport) OnConnectionState(fn func(webrtc.PeerConnectionState)) { f.onState = fn }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) appliedCandidates() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), f.applied...)
}

func (f *fakeTransport) replacedTracks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replaced)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSignaler struct {
	mu         sync.Mutex
	offers     []string
	answers    []string
	candidates []webrtc.ICECandidateInit
}

func (s *fakeSignaler) SendOffer(_ domain.Identity, sdp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, sdp)
}

func (s *fakeSignaler) SendAnswer(_ domain.Identity, sdp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, sdp)
}

func (s *fakeSignaler) SendCandidate(_ domain.Identity, c webrtc.ICECandidateInit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, c)
}

func (s *fakeSignaler) sentOffers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offers)
}

func (s *fakeSignaler) sentAnswers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// fakeTrack satisfies webrtc.TrackLocal without any media behind it.
type fakeTrack struct{ id string }

func (t *fakeTrack) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}
func (t *fakeTrack) Unbind(webrtc.TrackLocalContext) error { return nil }
func (t *fakeTrack) ID() string                            { return t.id }
func (t *fakeTrack) RID() string                           { return "" }
func (t *fakeTrack) StreamID() string                      { return "local" }
func (t *fakeTrack) Kind() webrtc.RTPCodecType             { return webrtc.RTPCodecTypeVideo }

func newLink(role Role, tr Transport, sig Signaler, opts ...func(*Config)) *Link {
	cfg := Config{
		Remote:    "id-remote",
		Role:      role,
		Transport: tr,
		Signaler:  sig,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return New(cfg)
}

func TestOffererSendsExactlyOneOffer(t *testing.T) {
	tr := &fakeTransport{}
	sig := &fakeSignaler{}
	l := newLink(RoleOfferer, tr, sig)

	assert.Equal(t, StateIdle, l.State())
	l.MediaReady()
	assert.Equal(t, StateOffering, l.State())
	assert.Equal(t, 1, sig.sentOffers())

	// Duplicate readiness notifications must not re-offer.
	l.MediaReady()
	assert.Equal(t, 1, sig.sentOffers())
}

func TestAnswererNeverOffersFirst(t *testing.T) {
	sig := &fakeSignaler{}
	l := newLink(RoleAnswerer, &fakeTransport{}, sig)
	l.MediaReady()
	assert.Equal(t, StateIdle, l.State())
	assert.Equal(t, 0, sig.sentOffers())
}

func TestOfferAnswerRoundTripConnectsBothRoles(t *testing.T) {
	offSig := &fakeSignaler{}
	offerer := newLink(RoleOfferer, &fakeTransport{}, offSig)
	offerer.MediaReady()

	ansSig := &fakeSignaler{}
	answerer := newLink(RoleAnswerer, &fakeTransport{}, ansSig)
	answerer.MediaReady()

	answerer.HandleOffer(offSig.offers[0])
	assert.Equal(t, StateConnected, answerer.State())
	require.Equal(t, 1, ansSig.sentAnswers())

	offerer.HandleAnswer(ansSig.answers[0])
	assert.Equal(t, StateConnected, offerer.State())
}

func TestGlareOfferIsIgnored(t *testing.T) {
	tr := &fakeTransport{}
	sig := &fakeSignaler{}
	l := newLink(RoleOfferer, tr, sig)
	l.MediaReady()
	require.Equal(t, StateOffering, l.State())

	l.HandleOffer("v=0 colliding-offer")
	assert.Equal(t, StateOffering, l.State())
	assert.Equal(t, 0, sig.sentAnswers())
	tr.mu.Lock()
	assert.Equal(t, 0, tr.answers)
	tr.mu.Unlock()
}

func TestAnswerOutsideOfferingIsIgnored(t *testing.T) {
	l := newLink(RoleAnswerer, &fakeTransport{}, &fakeSignaler{})
	l.HandleAnswer("v=0 stray-answer")
	assert.Equal(t, StateIdle, l.State())
}

func TestCandidatesBufferedUntilRemoteDescriptionThenFlushedInOrder(t *testing.T) {
	tr := &fakeTransport{}
	l := newLink(RoleAnswerer, tr, &fakeSignaler{})
	l.MediaReady()

	for _, c := range []string{"cand-1", "cand-2", "cand-3"} {
		l.HandleCandidate(webrtc.ICECandidateInit{Candidate: c})
	}
	assert.Empty(t, tr.appliedCandidates())

	l.HandleOffer("v=0 offer")
	applied := tr.appliedCandidates()
	require.Len(t, applied, 3)
	assert.Equal(t, "cand-1", applied[0].Candidate)
	assert.Equal(t, "cand-2", applied[1].Candidate)
	assert.Equal(t, "cand-3", applied[2].Candidate)

	// Once the remote description is set, candidates apply immediately.
	l.HandleCandidate(webrtc.ICECandidateInit{Candidate: "cand-4"})
	assert.Len(t, tr.appliedCandidates(), 4)
}

func TestCandidateBufferIsBounded(t *testing.T) {
	tr := &fakeTransport{}
	l := newLink(RoleAnswerer, tr, &fakeSignaler{}, func(c *Config) {
		c.CandidateQueueCap = 2
	})
	for i := 0; i < 5; i++ {
		l.HandleCandidate(webrtc.ICECandidateInit{Candidate: "cand"})
	}
	l.MediaReady()
	l.HandleOffer("v=0 offer")
	assert.Len(t, tr.appliedCandidates(), 2)
}

func TestOfferHeldUntilMediaReady(t *testing.T) {
	tr := &fakeTransport{}
	sig := &fakeSignaler{}
	l := newLink(RoleAnswerer, tr, sig)

	l.HandleOffer("v=0 early-offer")
	assert.Equal(t, StateOfferReceived, l.State())
	assert.Equal(t, 0, sig.sentAnswers())

	l.HandleCandidate(webrtc.ICECandidateInit{Candidate: "early-cand"})

	l.MediaReady()
	assert.Equal(t, StateConnected, l.State())
	assert.Equal(t, 1, sig.sentAnswers())
	require.Len(t, tr.appliedCandidates(), 1)
	assert.Equal(t, "early-cand", tr.appliedCandidates()[0].Candidate)
}

func TestNegotiationTimeoutFailsTheLink(t *testing.T) {
	failures := make(chan error, 1)
	l := newLink(RoleOfferer, &fakeTransport{}, &fakeSignaler{}, func(c *Config) {
		c.NegotiationTimeout = 20 * time.Millisecond
		c.OnFailure = func(_ domain.Identity, err error) { failures <- err }
	})
	l.MediaReady()

	select {
	case err := <-failures:
		assert.ErrorIs(t, err, ErrNegotiationTimeout)
	case <-time.After(time.Second):
		t.Fatal("link never reported the timeout")
	}
	assert.Equal(t, StateFailed, l.State())
}

func TestTimerStoppedOnceConnected(t *testing.T) {
	sig := &fakeSignaler{}
	l := newLink(RoleOfferer, &fakeTransport{}, sig, func(c *Config) {
		c.NegotiationTimeout = 20 * time.Millisecond
		c.OnFailure = func(domain.Identity, error) { t.Error("connected link must not time out") }
	})
	l.MediaReady()
	l.HandleAnswer("v=0 answer")
	require.Equal(t, StateConnected, l.State())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateConnected, l.State())
}

func TestTransportFailureClosesOnlyThisLink(t *testing.T) {
	trA := &fakeTransport{}
	trB := &fakeTransport{}
	a := newLink(RoleOfferer, trA, &fakeSignaler{})
	b := newLink(RoleOfferer, trB, &fakeSignaler{})
	a.MediaReady()
	b.MediaReady()

	trA.onState(webrtc.PeerConnectionStateFailed)
	assert.Equal(t, StateFailed, a.State())
	assert.True(t, trA.isClosed())

	assert.Equal(t, StateOffering, b.State())
	assert.False(t, trB.isClosed())
}

func TestScreenShareSwapsInPlaceWhileConnected(t *testing.T) {
	tr := &fakeTransport{}
	sig := &fakeSignaler{}
	l := newLink(RoleOfferer, tr, sig)
	l.MediaReady()
	l.HandleAnswer("v=0 answer")
	require.Equal(t, StateConnected, l.State())
	offersBefore := sig.sentOffers()

	require.NoError(t, l.SetOutbound(SourceScreen, &fakeTrack{id: "screen"}))
	assert.Equal(t, SourceScreen, l.Source())
	assert.Equal(t, 1, tr.replacedTracks())

	require.NoError(t, l.SetOutbound(SourceCamera, &fakeTrack{id: "camera"}))
	assert.Equal(t, SourceCamera, l.Source())
	assert.Equal(t, 2, tr.replacedTracks())

	// The swap never renegotiates.
	assert.Equal(t, offersBefore, sig.sentOffers())
	assert.Equal(t, StateConnected, l.State())
}

func TestScreenShareQueuedUntilConnected(t *testing.T) {
	tr := &fakeTransport{}
	sig := &fakeSignaler{}
	l := newLink(RoleOfferer, tr, sig)
	l.MediaReady()
	require.NoError(t, l.SetOutbound(SourceScreen, &fakeTrack{id: "screen"}))
	assert.Equal(t, 0, tr.replacedTracks())
	assert.Equal(t, SourceCamera, l.Source())

	l.HandleAnswer("v=0 answer")
	assert.Equal(t, 1, tr.replacedTracks())
	assert.Equal(t, SourceScreen, l.Source())
}

func TestSetOutboundOnFailedLink(t *testing.T) {
	l := newLink(RoleOfferer, &fakeTransport{}, &fakeSignaler{})
	l.Fail(errors.New("ice gave up"))
	err := l.SetOutbound(SourceScreen, &fakeTrack{id: "screen"})
	assert.ErrorIs(t, err, ErrTransportFailed)
}

func TestRestartReRunsNegotiationWithFreshTransport(t *testing.T) {
	tr := &fakeTransport{}
	sig := &fakeSignaler{}
	l := newLink(RoleOfferer, tr, sig)
	l.MediaReady()
	l.Fail(errors.New("ice gave up"))
	require.Equal(t, StateFailed, l.State())

	fresh := &fakeTransport{}
	require.NoError(t, l.Restart(fresh))
	assert.Equal(t, StateOffering, l.State())
	assert.Equal(t, 2, sig.sentOffers())
	assert.Equal(t, 1, fresh.offers)
}

func TestRestartRejectedOutsideFailed(t *testing.T) {
	l := newLink(RoleOfferer, &fakeTransport{}, &fakeSignaler{})
	assert.Error(t, l.Restart(&fakeTransport{}))
}

func TestLocalCandidatesForwardedToSignaler(t *testing.T) {
	tr := &fakeTransport{}
	sig := &fakeSignaler{}
	newLink(RoleOfferer, tr, sig)
	require.NotNil(t, tr.onICE)
	tr.onICE(webrtc.ICECandidateInit{Candidate: "local-cand"})
	sig.mu.Lock()
	defer sig.mu.Unlock()
	require.Len(t, sig.candidates, 1)
	assert.Equal(t, "local-cand", sig.candidates[0].Candidate)
}

func TestCloseStopsTheLinkAndTransport(t *testing.T) {
	tr := &fakeTransport{}
	l := newLink(RoleOfferer, tr, &fakeSignaler{})
	l.Close()
	assert.Equal(t, StateClosed, l.State())
	assert.True(t, tr.isClosed())
}

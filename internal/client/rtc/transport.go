// Package rtc implements the peerlink transport on top of pion.
package rtc

import (
	"errors"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/domain"
)

// Transport owns one webrtc.PeerConnection. It is never shared between
// links; the owning link closes it.
type Transport struct {
	pc     *webrtc.PeerConnection
	remote domain.Identity

	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

func DefaultConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	}
}

func NewTransport(cfg webrtc.Configuration, remote domain.Identity) (*Transport, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	t := &Transport{pc: pc, remote: remote}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil && t.onICE != nil {
			t.onICE(c.ToJSON())
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("remote", string(t.remote)).
			Str("peer_connection_state", s.String()).Msg("peer state")
		if t.onState != nil {
			t.onState(s)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("remote", string(t.remote)).
			Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")
		if t.onTrack != nil {
			t.onTrack(track, receiver)
		}
	})
	return t, nil
}

// AddLocalTracks attaches the local audio/video sources. Must happen before
// the offer/answer so the media sections are in the SDP.
func (t *Transport) AddLocalTracks(audio, video webrtc.TrackLocal) error {
	if audio != nil {
		sender, err := t.pc.AddTrack(audio)
		if err != nil {
			return err
		}
		t.audioSender = sender
	}
	if video != nil {
		sender, err := t.pc.AddTrack(video)
		if err != nil {
			return err
		}
		t.videoSender = sender
	}
	return nil
}

func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (t *Transport) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (t *Transport) AcceptAnswer(answer webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(answer)
}

func (t *Transport) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(c)
}

// ReplaceVideo swaps the outbound video source on the live sender. No
// renegotiation: the m-line stays, only the payload source changes.
func (t *Transport) ReplaceVideo(track webrtc.TrackLocal) error {
	if t.videoSender == nil {
		return errors.New("no video sender")
	}
	return t.videoSender.ReplaceTrack(track)
}

func (t *Transport) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) { t.onICE = fn }

func (t *Transport) OnConnectionState(fn func(webrtc.PeerConnectionState)) { t.onState = fn }

// OnTrack sets the render-side callback for remote media.
func (t *Transport) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) { t.onTrack = fn }

func (t *Transport) Close() error {
	if t.pc == nil {
		return nil
	}
	if err := t.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("remote", string(t.remote)).Msg("close error")
		return err
	}
	return nil
}

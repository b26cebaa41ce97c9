package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/okutsev/huddle/internal/client/mesh"
	"github.com/okutsev/huddle/internal/client/peerlink"
	"github.com/okutsev/huddle/internal/domain"
)

// Factory builds the mesh coordinator's transport factory over pion. Nil
// tracks are fine: the resulting transport is receive-only for that kind.
func Factory(cfg webrtc.Configuration) mesh.TransportFactory {
	return func(remote domain.Identity, audio, video webrtc.TrackLocal) (peerlink.Transport, error) {
		t, err := NewTransport(cfg, remote)
		if err != nil {
			return nil, err
		}
		if err := t.AddLocalTracks(audio, video); err != nil {
			_ = t.Close()
			return nil, err
		}
		return t, nil
	}
}

package registry

import (
	"sync"

	"github.com/okutsev/huddle/internal/core"
	"github.com/okutsev/huddle/internal/domain"
)

// roomState is one unit of mutual exclusion: every mutation and every fan-out
// for one room serializes on its mutex, independent rooms proceed in parallel.
type roomState struct {
	mu      sync.Mutex
	room    *domain.Room
	order   []core.SID
	members map[core.SID]*core.Member
	shares  map[domain.Identity]domain.ScreenShareAnnouncement
	closed  bool
}

func newRoomState(room *domain.Room) *roomState {
	return &roomState{
		room:    room,
		members: make(map[core.SID]*core.Member),
		shares:  make(map[domain.Identity]domain.ScreenShareAnnouncement),
	}
}

// locked helpers; callers hold rs.mu.

func (rs *roomState) snapshotLocked() []core.ParticipantDTO {
	out := make([]core.ParticipantDTO, 0, len(rs.order))
	for _, sid := range rs.order {
		if m, ok := rs.members[sid]; ok {
			out = append(out, core.DTOOf(m))
		}
	}
	return out
}

func (rs *roomState) sharesLocked() []domain.ScreenShareAnnouncement {
	out := make([]domain.ScreenShareAnnouncement, 0, len(rs.shares))
	for _, ann := range rs.shares {
		out = append(out, ann)
	}
	return out
}

func (rs *roomState) addLocked(m *core.Member) {
	rs.members[m.SID] = m
	rs.order = append(rs.order, m.SID)
}

func (rs *roomState) removeLocked(sid core.SID) (*core.Member, bool) {
	m, ok := rs.members[sid]
	if !ok {
		return nil, false
	}
	delete(rs.members, sid)
	delete(rs.shares, m.Meta.Identity)
	for i, s := range rs.order {
		if s == sid {
			rs.order = append(rs.order[:i], rs.order[i+1:]...)
			break
		}
	}
	return m, true
}

func (rs *roomState) byIdentityLocked(id domain.Identity) (*core.Member, bool) {
	for _, m := range rs.members {
		if m.Meta.Identity == id {
			return m, true
		}
	}
	return nil, false
}

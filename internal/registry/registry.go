// Package registry is the authoritative in-memory room/participant store.
// It is an arena of independent per-room states indexed by room id; no other
// component mutates membership directly.
package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/core"
	"github.com/okutsev/huddle/internal/domain"
)

// CreateRoomFn builds the room when a join targets a room that does not
// exist yet. nil means create-on-join is not allowed for this request.
type CreateRoomFn func() (*domain.Room, error)

// PrepareFn runs under the room lock before the member is added. It is the
// admission policy hook: it validates credentials/capacity and assigns the
// role on the participant. A non-nil error aborts the join atomically.
type PrepareFn func(room *domain.Room, occupancy int) error

type EnterResult struct {
	Room     *domain.Room
	Existing []core.ParticipantDTO
	Shares   []domain.ScreenShareAnnouncement
}

type LeaveResult struct {
	RoomID    domain.RoomID
	Member    *core.Member
	WasAdmin  bool
	RoomEnded bool
}

type RoomInfo struct {
	ID         domain.RoomID `json:"id"`
	Kind       string        `json:"kind"`
	Occupancy  int           `json:"occupancy"`
	Capacity   int           `json:"capacity,omitempty"`
	Locked     bool          `json:"locked"`
	InviteOnly bool          `json:"inviteOnly"`
	CreatedAt  time.Time     `json:"createdAt"`
}

type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
	bySID map[core.SID]domain.RoomID
}

func New() *Registry {
	return &Registry{
		rooms: make(map[domain.RoomID]*roomState),
		bySID: make(map[core.SID]domain.RoomID),
	}
}

// Enter admits a member into a room atomically: room resolution (or creation),
// the prepare policy hook and the membership insert all happen under the room
// lock, so a join can never interleave with a kick, a delete or another join
// of the same room.
func (r *Registry) Enter(id domain.RoomID, m *core.Member, create CreateRoomFn, prepare PrepareFn) (*EnterResult, error) {
	for {
		r.mu.Lock()
		if _, dup := r.bySID[m.SID]; dup {
			r.mu.Unlock()
			return nil, domain.ErrAlreadyJoined
		}
		rs, ok := r.rooms[id]
		created := false
		if ok {
			r.bySID[m.SID] = id
			r.mu.Unlock()
		} else {
			if create == nil {
				r.mu.Unlock()
				return nil, domain.ErrRoomNotFound
			}
			// Build the room outside the arena lock: create may hash a
			// password, and joins to unrelated rooms must not stall behind it.
			r.mu.Unlock()
			room, err := create()
			if err != nil {
				return nil, err
			}
			fresh := newRoomState(room)

			r.mu.Lock()
			if _, dup := r.bySID[m.SID]; dup {
				r.mu.Unlock()
				return nil, domain.ErrAlreadyJoined
			}
			if cur, exists := r.rooms[id]; exists {
				// Another joiner registered the room while we were building
				// ours; join theirs and let the fresh one be collected.
				rs = cur
			} else {
				r.rooms[id] = fresh
				rs = fresh
				created = true
			}
			r.bySID[m.SID] = id
			r.mu.Unlock()
		}

		rs.mu.Lock()
		if rs.closed {
			rs.mu.Unlock()
			r.release(m.SID)
			if create == nil {
				// Join raced the room's deletion.
				return nil, domain.ErrRoomInactive
			}
			// An ephemeral room died under us; drop the husk and retry so
			// the joiner becomes the creator of a fresh room.
			r.evict(id, rs)
			continue
		}
		if err := prepare(rs.room, len(rs.members)); err != nil {
			if created && len(rs.members) == 0 {
				// Do not leave behind an empty room whose first join failed.
				rs.closed = true
				rs.mu.Unlock()
				r.release(m.SID)
				r.evict(id, rs)
				return nil, err
			}
			rs.mu.Unlock()
			r.release(m.SID)
			return nil, err
		}
		res := &EnterResult{
			Room:     rs.room,
			Existing: rs.snapshotLocked(),
			Shares:   rs.sharesLocked(),
		}
		rs.addLocked(m)
		rs.mu.Unlock()

		log.Info().Str("module", "registry").Str("room", string(id)).
			Str("sid", string(m.SID)).Str("identity", string(m.Meta.Identity)).
			Msg("member entered")
		return res, nil
	}
}

// Leave removes the member bound to sid. An ephemeral room that becomes
// empty is destroyed immediately.
func (r *Registry) Leave(sid core.SID) (*LeaveResult, error) {
	r.mu.Lock()
	id, ok := r.bySID[sid]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrNotInRoom
	}
	delete(r.bySID, sid)
	rs := r.rooms[id]
	r.mu.Unlock()
	if rs == nil {
		return nil, domain.ErrNotInRoom
	}

	rs.mu.Lock()
	m, ok := rs.removeLocked(sid)
	ended := false
	if ok && rs.room.Kind == domain.RoomEphemeral && len(rs.members) == 0 {
		rs.closed = true
		ended = true
	}
	rs.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	if ended {
		r.evict(id, rs)
		log.Info().Str("module", "registry").Str("room", string(id)).Msg("ephemeral room destroyed")
	}
	return &LeaveResult{RoomID: id, Member: m, WasAdmin: m.Meta.IsAdmin, RoomEnded: ended}, nil
}

// CreateRoom registers a room without admitting anyone (permanent rooms).
func (r *Registry) CreateRoom(room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; ok {
		return domain.ErrRoomExists
	}
	r.rooms[room.ID] = newRoomState(room)
	log.Info().Str("module", "registry").Str("room", string(room.ID)).
		Str("kind", room.Kind.String()).Msg("room created")
	return nil
}

// DeleteRoom closes a room and detaches every member. Returned members are
// still holding live connections; the caller owns notifying and closing them.
func (r *Registry) DeleteRoom(id domain.RoomID) ([]*core.Member, error) {
	r.mu.Lock()
	rs, ok := r.rooms[id]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrRoomNotFound
	}
	delete(r.rooms, id)
	r.mu.Unlock()

	rs.mu.Lock()
	rs.closed = true
	members := make([]*core.Member, 0, len(rs.members))
	for _, m := range rs.members {
		members = append(members, m)
	}
	rs.members = make(map[core.SID]*core.Member)
	rs.order = nil
	rs.mu.Unlock()

	r.mu.Lock()
	for _, m := range members {
		delete(r.bySID, m.SID)
	}
	r.mu.Unlock()
	log.Info().Str("module", "registry").Str("room", string(id)).Int("kicked", len(members)).Msg("room deleted")
	return members, nil
}

// UpdateRoom runs fn under the room lock with the room entity and the live
// member list, for atomic check-and-mutate admin operations.
func (r *Registry) UpdateRoom(id domain.RoomID, fn func(room *domain.Room, members []*core.Member) error) error {
	rs, ok := r.state(id)
	if !ok {
		return domain.ErrRoomNotFound
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return domain.ErrRoomInactive
	}
	members := make([]*core.Member, 0, len(rs.members))
	for _, sid := range rs.order {
		if m, ok := rs.members[sid]; ok {
			members = append(members, m)
		}
	}
	return fn(rs.room, members)
}

func (r *Registry) RoomOf(sid core.SID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySID[sid]
	return id, ok
}

func (r *Registry) MemberBySID(sid core.SID) (*core.Member, domain.RoomID, bool) {
	r.mu.RLock()
	id, ok := r.bySID[sid]
	rs := r.rooms[id]
	r.mu.RUnlock()
	if !ok || rs == nil {
		return nil, "", false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	m, ok := rs.members[sid]
	return m, id, ok
}

func (r *Registry) FindByIdentity(id domain.RoomID, identity domain.Identity) (*core.Member, bool) {
	rs, ok := r.state(id)
	if !ok {
		return nil, false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.byIdentityLocked(identity)
}

func (r *Registry) Participants(id domain.RoomID) ([]core.ParticipantDTO, error) {
	rs, ok := r.state(id)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.snapshotLocked(), nil
}

// Broadcast fans a frame out to every member of the room except from.
// Running under the room lock is what gives observers a consistent event
// order relative to membership changes.
func (r *Registry) Broadcast(id domain.RoomID, from core.SID, data core.Frame) (core.PublishResult, error) {
	rs, ok := r.state(id)
	if !ok {
		return core.PublishResult{}, domain.ErrRoomNotFound
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	res := core.PublishResult{}
	for sid, m := range rs.members {
		if sid == from {
			continue
		}
		if err := m.Conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "registry").Str("room", string(id)).
		Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast")
	return res, nil
}

// SendToIdentity relays a frame to exactly one member of the room.
func (r *Registry) SendToIdentity(id domain.RoomID, target domain.Identity, data core.Frame) error {
	rs, ok := r.state(id)
	if !ok {
		return domain.ErrRoomNotFound
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	m, ok := rs.byIdentityLocked(target)
	if !ok {
		return domain.ErrUnknownTarget
	}
	return m.Conn.TrySend(data)
}

// SetShare records last-writer-wins screen-share state so late joiners can
// be told who is sharing.
func (r *Registry) SetShare(id domain.RoomID, ann domain.ScreenShareAnnouncement) error {
	rs, ok := r.state(id)
	if !ok {
		return domain.ErrRoomNotFound
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if ann.IsSharing {
		rs.shares[ann.Identity] = ann
	} else {
		delete(rs.shares, ann.Identity)
	}
	return nil
}

func (r *Registry) Shares(id domain.RoomID) ([]domain.ScreenShareAnnouncement, error) {
	rs, ok := r.state(id)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.sharesLocked(), nil
}

func (r *Registry) RoomSnapshot(id domain.RoomID) (RoomInfo, error) {
	rs, ok := r.state(id)
	if !ok {
		return RoomInfo{}, domain.ErrRoomNotFound
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return RoomInfo{
		ID:         rs.room.ID,
		Kind:       rs.room.Kind.String(),
		Occupancy:  len(rs.members),
		Capacity:   rs.room.Capacity,
		Locked:     rs.room.RequiresPassword(),
		InviteOnly: rs.room.InviteOnly,
		CreatedAt:  rs.room.CreatedAt,
	}, nil
}

func (r *Registry) List() []RoomInfo {
	r.mu.RLock()
	ids := make([]domain.RoomID, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(ids))
	for _, id := range ids {
		if info, err := r.RoomSnapshot(id); err == nil {
			out = append(out, info)
		}
	}
	return out
}

func (r *Registry) state(id domain.RoomID) (*roomState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.rooms[id]
	return rs, ok
}

func (r *Registry) release(sid core.SID) {
	r.mu.Lock()
	delete(r.bySID, sid)
	r.mu.Unlock()
}

// evict drops a closed roomState from the arena if it is still the one mapped.
func (r *Registry) evict(id domain.RoomID, rs *roomState) {
	r.mu.Lock()
	if cur, ok := r.rooms[id]; ok && cur == rs {
		delete(r.rooms, id)
	}
	r.mu.Unlock()
}

// Package admission is the policy layer over the registry: credential,
// invite and capacity checks, role assignment, and admin actions. All
// membership mutations funnel through here or through the registry itself.
package admission

import (
	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/core"
	"github.com/okutsev/huddle/internal/domain"
	"github.com/okutsev/huddle/internal/registry"
)

type AdminAction string

const (
	ActionKick    AdminAction = "kick"
	ActionPromote AdminAction = "promote"
	ActionDemote  AdminAction = "demote"
)

type JoinRequest struct {
	RoomID      domain.RoomID
	Password    string
	DisplayName string
	Identity    domain.Identity
}

type JoinResult struct {
	Member   *core.Member
	RoomKind domain.RoomKind
	Existing []core.ParticipantDTO
	Shares   []domain.ScreenShareAnnouncement
}

type RoomOptions struct {
	Password   string
	Capacity   int
	InviteOnly bool
	Admins     []domain.Identity
	Invited    []domain.Identity
}

type Controller struct {
	Reg             *registry.Registry
	DefaultCapacity int
}

func NewController(reg *registry.Registry, defaultCapacity int) *Controller {
	return &Controller{Reg: reg, DefaultCapacity: defaultCapacity}
}

// Join validates, in order: room existence (create-on-join is allowed only
// for ephemeral rooms), password, invite list, then capacity (ephemeral
// rooms only). On success the participant is registered and gets the admin
// role if they are the creator or a pre-listed admin.
func (c *Controller) Join(conn core.SignalConnection, sid core.SID, req JoinRequest) (*JoinResult, error) {
	if req.RoomID == "" || len(req.RoomID) > domain.MaxRoomIDLen {
		return nil, domain.ErrRoomNotFound
	}
	p, err := domain.NewParticipant(req.DisplayName, req.Identity)
	if err != nil {
		return nil, err
	}
	member := core.NewMember(sid, p, conn)

	create := func() (*domain.Room, error) {
		room := domain.NewRoom(req.RoomID, domain.RoomEphemeral, p.Identity)
		room.Capacity = c.DefaultCapacity
		if err := room.SetPassword(req.Password); err != nil {
			return nil, err
		}
		return room, nil
	}
	prepare := func(room *domain.Room, occupancy int) error {
		if !room.CheckPassword(req.Password) {
			return domain.ErrInvalidCredentials
		}
		if !room.IsInvited(p.Identity) {
			return domain.ErrNotInvited
		}
		if room.Kind == domain.RoomEphemeral && room.Capacity > 0 && occupancy >= room.Capacity {
			return domain.ErrRoomFull
		}
		p.IsAdmin = room.IsAdmin(p.Identity) || (occupancy == 0 && room.Creator == p.Identity)
		return nil
	}

	res, err := c.Reg.Enter(req.RoomID, member, create, prepare)
	if err != nil {
		return nil, err
	}
	return &JoinResult{
		Member:   member,
		RoomKind: res.Room.Kind,
		Existing: res.Existing,
		Shares:   res.Shares,
	}, nil
}

// Leave removes the participant bound to sid; an emptied ephemeral room is
// destroyed by the registry.
func (c *Controller) Leave(sid core.SID) (*registry.LeaveResult, error) {
	return c.Reg.Leave(sid)
}

// Kick forcibly removes target from the actor's room. Returns the removed
// member so the adapter can notify and close its connection, and whether
// the removal emptied an ephemeral room out of existence.
func (c *Controller) Kick(actor core.SID, target domain.Identity) (*core.Member, domain.RoomID, bool, error) {
	roomID, victim, err := c.authorize(actor, target)
	if err != nil {
		return nil, "", false, err
	}
	res, err := c.Reg.Leave(victim.SID)
	if err != nil {
		return nil, "", false, err
	}
	log.Info().Str("module", "admission").Str("room", string(roomID)).
		Str("target", string(target)).Bool("room_ended", res.RoomEnded).Msg("participant kicked")
	return victim, roomID, res.RoomEnded, nil
}

// Promote grants target the admin role. Only a permanent room's admin set
// is mutated; ephemeral rooms have no durable roles to grant.
func (c *Controller) Promote(actor core.SID, target domain.Identity) (*core.Member, domain.RoomID, error) {
	return c.setAdmin(actor, target, true)
}

// Demote revokes the admin role. The room creator cannot be demoted.
func (c *Controller) Demote(actor core.SID, target domain.Identity) (*core.Member, domain.RoomID, error) {
	return c.setAdmin(actor, target, false)
}

func (c *Controller) setAdmin(actor core.SID, target domain.Identity, admin bool) (*core.Member, domain.RoomID, error) {
	roomID, victim, err := c.authorize(actor, target)
	if err != nil {
		return nil, "", err
	}
	err = c.Reg.UpdateRoom(roomID, func(room *domain.Room, members []*core.Member) error {
		if room.Kind != domain.RoomPermanent {
			return domain.ErrForbidden
		}
		if !admin && target == room.Creator {
			return domain.ErrForbidden
		}
		if admin {
			room.Admins[target] = struct{}{}
		} else {
			delete(room.Admins, target)
		}
		for _, m := range members {
			if m.Meta.Identity == target {
				m.Meta.IsAdmin = admin
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return victim, roomID, nil
}

// authorize resolves the actor's room and the target member, rejecting
// non-admin actors with a generic permission error and no side effect.
func (c *Controller) authorize(actor core.SID, target domain.Identity) (domain.RoomID, *core.Member, error) {
	am, roomID, ok := c.Reg.MemberBySID(actor)
	if !ok {
		return "", nil, domain.ErrNotInRoom
	}
	if !am.Meta.IsAdmin {
		return "", nil, domain.ErrForbidden
	}
	victim, ok := c.Reg.FindByIdentity(roomID, target)
	if !ok {
		return "", nil, domain.ErrUnknownTarget
	}
	return roomID, victim, nil
}

// CreatePermanentRoom registers a room that persists regardless of occupancy.
func (c *Controller) CreatePermanentRoom(id domain.RoomID, creator domain.Identity, opts RoomOptions) error {
	if id == "" || len(id) > domain.MaxRoomIDLen {
		return domain.ErrRoomNotFound
	}
	room := domain.NewRoom(id, domain.RoomPermanent, creator)
	room.Capacity = opts.Capacity
	room.InviteOnly = opts.InviteOnly
	if err := room.SetPassword(opts.Password); err != nil {
		return err
	}
	for _, a := range opts.Admins {
		room.Admins[a] = struct{}{}
	}
	for _, inv := range opts.Invited {
		room.Invited[inv] = struct{}{}
	}
	return c.Reg.CreateRoom(room)
}

// DeletePermanentRoom tears the room down. Only the creator may delete it.
// Returned members still hold live connections; the caller notifies them.
func (c *Controller) DeletePermanentRoom(id domain.RoomID, actor domain.Identity) ([]*core.Member, error) {
	info, err := c.Reg.RoomSnapshot(id)
	if err != nil {
		return nil, err
	}
	if info.Kind != domain.RoomPermanent.String() {
		return nil, domain.ErrForbidden
	}
	allowed := false
	uerr := c.Reg.UpdateRoom(id, func(room *domain.Room, _ []*core.Member) error {
		allowed = room.Creator == actor
		return nil
	})
	if uerr != nil {
		return nil, uerr
	}
	if !allowed {
		return nil, domain.ErrForbidden
	}
	return c.Reg.DeleteRoom(id)
}

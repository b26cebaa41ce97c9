package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParticipantValidatesName(t *testing.T) {
	_, err := NewParticipant("", "id-a")
	assert.ErrorIs(t, err, ErrNameEmpty)

	_, err = NewParticipant(strings.Repeat("x", MaxDisplayNameLen+1), "id-a")
	assert.ErrorIs(t, err, ErrNameTooLong)

	p, err := NewParticipant("alice", "id-a")
	require.NoError(t, err)
	assert.Equal(t, Identity("id-a"), p.Identity)
	assert.False(t, p.IsAdmin)
}

func TestGuestsGetARandomIdentity(t *testing.T) {
	a, err := NewParticipant("alice", "")
	require.NoError(t, err)
	b, err := NewParticipant("alice", "")
	require.NoError(t, err)
	assert.NotEmpty(t, a.Identity)
	assert.NotEqual(t, a.Identity, b.Identity)
}

func TestRoomPassword(t *testing.T) {
	r := NewRoom("call", RoomEphemeral, "id-a")
	assert.False(t, r.RequiresPassword())
	assert.True(t, r.CheckPassword(""))
	assert.True(t, r.CheckPassword("anything"))

	require.NoError(t, r.SetPassword("hunter2"))
	assert.True(t, r.RequiresPassword())
	assert.True(t, r.CheckPassword("hunter2"))
	assert.False(t, r.CheckPassword("wrong"))

	require.NoError(t, r.SetPassword(""))
	assert.False(t, r.RequiresPassword())
}

func TestCreatorIsAlwaysAdmin(t *testing.T) {
	r := NewRoom("call", RoomPermanent, "id-owner")
	assert.True(t, r.IsAdmin("id-owner"))
	assert.False(t, r.IsAdmin("id-b"))
	assert.False(t, r.IsAdmin(""))

	r.Admins["id-b"] = struct{}{}
	assert.True(t, r.IsAdmin("id-b"))
}

func TestInviteOnlyMembership(t *testing.T) {
	r := NewRoom("team", RoomPermanent, "id-owner")
	assert.True(t, r.IsInvited("id-anyone"), "open rooms admit everyone")

	r.InviteOnly = true
	assert.True(t, r.IsInvited("id-owner"))
	assert.False(t, r.IsInvited("id-anyone"))
	assert.False(t, r.IsInvited(""))

	r.Invited["id-friend"] = struct{}{}
	assert.True(t, r.IsInvited("id-friend"))
	r.Admins["id-mod"] = struct{}{}
	assert.True(t, r.IsInvited("id-mod"))
}

func TestReasonCodes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrRoomFull, "ROOM_FULL"},
		{ErrInvalidCredentials, "INVALID_CREDENTIALS"},
		{ErrNotInvited, "NOT_INVITED"},
		{ErrRoomInactive, "ROOM_INACTIVE"},
		{ErrRoomNotFound, "ROOM_NOT_FOUND"},
		{ErrRoomExists, "ROOM_EXISTS"},
		{ErrAlreadyJoined, "ALREADY_JOINED"},
		{ErrNotInRoom, "NOT_IN_ROOM"},
		{ErrForbidden, "FORBIDDEN"},
		{ErrUnknownTarget, "UNKNOWN_TARGET"},
		{ErrNameEmpty, "BAD_REQUEST"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.code, Reason(tc.err))
	}
}

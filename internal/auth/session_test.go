package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRoomTokenRoundTrip(t *testing.T) {
	Init()

	in := RoomClaims{
		PlayerID: uuid.New(),
		RoomCode: "AB12CD",
		Name:     "Alice",
		IsHost:   true,
	}
	token, err := CreateRoomToken(in)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	out, err := VerifyRoomToken(token)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	Init()

	token, err := CreateRoomToken(RoomClaims{PlayerID: uuid.New(), RoomCode: "AB12CD"})
	require.NoError(t, err)

	_, err = VerifyRoomToken(token + "x")
	require.Error(t, err)
}

func TestVerifyRejectsTokenFromOtherKey(t *testing.T) {
	Init()
	token, err := CreateRoomToken(RoomClaims{PlayerID: uuid.New(), RoomCode: "AB12CD"})
	require.NoError(t, err)

	// Rotating the key pair invalidates everything signed before.
	Init()
	_, err = VerifyRoomToken(token)
	require.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	Init()
	_, err := VerifyRoomToken("not-a-jwt")
	require.Error(t, err)
}

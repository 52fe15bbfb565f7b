package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverLocationNoEcho(t *testing.T) {
	h := newHarness(false)
	d := h.connect(t, "D")
	u1 := h.connect(t, "U1")
	u2 := h.connect(t, "U2")
	for _, id := range []string{"D", "U1", "U2"} {
		require.NoError(t, h.lc.OnJoinRoom(id, "trip-1"))
	}

	require.NoError(t, h.eng.DriverLocation("D", "trip-1", loc(11, 21)))

	assert.Empty(t, d.decoded(t))
	for _, s := range []*fakeSink{u1, u2} {
		frames := s.decoded(t)
		require.Len(t, frames, 1)
		assert.Equal(t, EventLocationBroadcast, frames[0].Event)
		assert.JSONEq(t, `{"lat":11,"lng":21}`, string(frames[0].Body))
	}
}

func TestDriverLocationForwardsVerbatim(t *testing.T) {
	h := newHarness(false)
	h.connect(t, "D")
	u := h.connect(t, "U")
	require.NoError(t, h.lc.OnJoinRoom("D", "r"))
	require.NoError(t, h.lc.OnJoinRoom("U", "r"))

	var l Location
	raw := `{"lat":1,"lng":2,"heading":90}`
	require.NoError(t, json.Unmarshal([]byte(raw), &l))
	require.NoError(t, h.eng.DriverLocation("D", "r", l))

	frames := u.decoded(t)
	require.Len(t, frames, 1)
	assert.JSONEq(t, raw, string(frames[0].Body))
}

func TestDriverLocationNotAMember(t *testing.T) {
	h := newHarness(false)
	h.connect(t, "D")
	u := h.connect(t, "U")
	require.NoError(t, h.lc.OnJoinRoom("U", "r"))

	assert.ErrorIs(t, h.eng.DriverLocation("D", "r", loc(1, 1)), ErrNotAMember)
	assert.ErrorIs(t, h.eng.DriverLocation("D", "nowhere", loc(1, 1)), ErrNotAMember)
	assert.Empty(t, u.decoded(t))
}

func TestUserLocationSnapshotToEveryone(t *testing.T) {
	h := newHarness(false)
	d := h.connect(t, "D")
	u1 := h.connect(t, "U1")
	u2 := h.connect(t, "U2")
	for _, id := range []string{"D", "U1", "U2"} {
		require.NoError(t, h.lc.OnJoinRoom(id, "r"))
	}

	require.NoError(t, h.eng.UserLocation("U2", "r", loc(5, 6)))

	for _, s := range []*fakeSink{d, u1, u2} {
		frames := s.decoded(t)
		require.Len(t, frames, 1)
		assert.Equal(t, EventMemberSnapshot, frames[0].Event)
		entries := decodeSnapshot(t, frames[0].Body)
		require.Len(t, entries, 1)
		assert.Equal(t, "U2", entries[0].ConnectionID)
		assert.Equal(t, 5.0, entries[0].Location.Lat)
	}
	assert.Equal(t, 1, h.obs.snapshots)
}

func TestUserLocationValidation(t *testing.T) {
	strict := newHarness(true)
	strict.connect(t, "U")
	require.NoError(t, strict.lc.OnJoinRoom("U", "r"))
	assert.ErrorIs(t, strict.eng.UserLocation("U", "r", loc(100, 0)), ErrInvalidLocation)
	assert.ErrorIs(t, strict.eng.DriverLocation("U", "r", loc(0, 200)), ErrInvalidLocation)

	lax := newHarness(false)
	lax.connect(t, "U")
	require.NoError(t, lax.lc.OnJoinRoom("U", "r"))
	assert.NoError(t, lax.eng.UserLocation("U", "r", loc(100, 0)))
}

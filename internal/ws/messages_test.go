package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationBodyShapes(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		room    string
		lat     float64
		missing bool
	}{
		{name: "wrapped", in: `{"roomId":"r","location":{"lat":1,"lng":2}}`, room: "r", lat: 1},
		{name: "bare", in: `{"lat":5,"lng":6}`, lat: 5},
		{name: "bare with room", in: `{"roomId":"r","lat":7,"lng":8}`, room: "r", lat: 7},
		{name: "room only", in: `{"roomId":"r"}`, room: "r", missing: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b LocationBody
			require.NoError(t, json.Unmarshal([]byte(tt.in), &b))
			assert.Equal(t, tt.room, b.RoomID)
			if tt.missing {
				assert.Nil(t, b.Location)
				return
			}
			require.NotNil(t, b.Location)
			assert.Equal(t, tt.lat, b.Location.Lat)
		})
	}
}

func TestLocationBodyRejectsNonObject(t *testing.T) {
	var b LocationBody
	assert.Error(t, json.Unmarshal([]byte(`"x"`), &b))
	assert.Error(t, json.Unmarshal([]byte(`{"lat":"north"}`), &b))
}

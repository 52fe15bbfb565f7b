package ws

import (
	"encoding/json"
	"triprelay/internal/relay"
)

// Envelope wraps every inbound WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "user-location"
	Body  json.RawMessage `json:"body,omitempty"` // event specific
}

// Inbound event names.
const (
	EventJoinRoom       = "join-room"
	EventDeclareRole    = "declare-role"
	EventDriverLocation = "driver-location"
	EventUserLocation   = "user-location"
)

// Outbound event names owned by the transport.
const (
	EventConnected = "connected"
	EventError     = "error"
)

// legacyEvents maps the event names used by the first map client.
var legacyEvents = map[string]string{
	"joinRoom":       EventJoinRoom,
	"driverLocation": EventDriverLocation,
	"userLocation":   EventUserLocation,
}

// LocationBody is the body of "driver-location" and "user-location". An
// empty RoomID means the room the connection already joined.
type LocationBody struct {
	RoomID   string          `json:"roomId"`
	Location *relay.Location `json:"location"`
}

// UnmarshalJSON also accepts the bare {"lat":..,"lng":..} body the first map
// client sends; the whole body is then the location.
func (b *LocationBody) UnmarshalJSON(data []byte) error {
	type wrapped LocationBody
	var w wrapped
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*b = LocationBody(w)
	if b.Location != nil {
		return nil
	}

	var coords struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if coords.Lat == nil && coords.Lng == nil {
		return nil
	}
	var loc relay.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return err
	}
	b.Location = &loc
	return nil
}

type ConnectedBody struct {
	ConnectionID string `json:"connectionId"`
}

// ErrorBody is returned for frames the server could not understand.
type ErrorBody struct {
	Error string `json:"error"`
}

package relay

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mmcloughlin/geohash"
)

// Location is a single position report. The JSON the client sent is kept
// as-is so relays forward exactly what was received.
type Location struct {
	Lat       float64    `json:"lat" validate:"min=-90,max=90"`
	Lng       float64    `json:"lng" validate:"min=-180,max=180"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	raw json.RawMessage
}

type locationFields struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (l *Location) UnmarshalJSON(data []byte) error {
	var f locationFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	l.Lat, l.Lng, l.Timestamp = f.Lat, f.Lng, f.Timestamp
	l.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (l Location) MarshalJSON() ([]byte, error) {
	if len(l.raw) > 0 {
		return l.raw, nil
	}
	return json.Marshal(locationFields{Lat: l.Lat, Lng: l.Lng, Timestamp: l.Timestamp})
}

// Cell returns the geohash of the position at the given precision.
func (l Location) Cell(precision uint) string {
	return geohash.EncodeWithPrecision(l.Lat, l.Lng, precision)
}

var validate = validator.New()

func checkLocation(l Location) error {
	if err := validate.Struct(l); err != nil {
		return ErrInvalidLocation
	}
	return nil
}

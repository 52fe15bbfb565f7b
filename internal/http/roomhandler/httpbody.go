package roomhandler

import "triprelay/internal/relay"

type RoomDetail struct {
	RoomID  string            `json:"roomId"  example:"trip-1"`
	Members relay.Snapshot    `json:"members" swaggertype:"array,object"`
	Cells   map[string]string `json:"cells"`
} // @name RoomDetail

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type RoomPath struct {
	ID string `uri:"id" binding:"required,max=128"`
} // @name RoomPath

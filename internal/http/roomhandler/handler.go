package roomhandler

import (
	"errors"
	"net/http"
	"sort"
	"triprelay/internal/relay"

	"github.com/gin-gonic/gin"
)

// cellPrecision is ~150 m, coarse enough for an overview.
const cellPrecision = 7

// RoomReader is the read side of relay.Directory.
type RoomReader interface {
	Rooms() []relay.RoomInfo
	MembersWithLocations(roomID string) (relay.Snapshot, error)
}

type Handler struct {
	rooms RoomReader
}

func New(rooms RoomReader) *Handler { return &Handler{rooms: rooms} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/rooms", h.list)
	r.GET("/rooms/:id", h.info)
}

// @Summary		List rooms
// @Description	Returns every live room with its member count and how many members reported a location.
// @Tags			Rooms
// @Success		200	{array}	relay.RoomInfo
// @Router			/rooms [get]
func (h *Handler) list(c *gin.Context) {
	out := h.rooms.Rooms()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	c.JSON(http.StatusOK, out)
}

// @Summary		Get room snapshot
// @Description	Returns the members of a room in join order with their last known location.
// @Tags			Rooms
// @Param			id	path		string	true	"Room ID"	default(trip-1)
// @Success		200	{object}	RoomDetail
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id} [get]
func (h *Handler) info(c *gin.Context) {
	var p RoomPath
	if err := c.ShouldBindUri(&p); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	snap, err := h.rooms.MembersWithLocations(p.ID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, relay.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}

	cells := make(map[string]string, len(snap))
	for _, m := range snap {
		if m.Location != nil {
			cells[m.ConnectionID] = m.Location.Cell(cellPrecision)
		}
	}
	c.JSON(http.StatusOK, RoomDetail{RoomID: p.ID, Members: snap, Cells: cells})
}

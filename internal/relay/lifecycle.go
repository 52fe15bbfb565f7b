package relay

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Lifecycle is the single entry and exit point for connections. Every
// OnConnect is paired with exactly one OnDisconnect by the transport.
type Lifecycle struct {
	registry  *Registry
	directory *Directory
	engine    *Engine
	observer  Observer
}

func NewLifecycle(reg *Registry, dir *Directory, eng *Engine, obs Observer) *Lifecycle {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Lifecycle{registry: reg, directory: dir, engine: eng, observer: obs}
}

func (l *Lifecycle) OnConnect(connID string, sink Sink) error {
	if _, err := l.registry.Register(connID, sink); err != nil {
		return err
	}
	zap.L().Debug("relay.connect", zap.String("conn", connID))
	return nil
}

func (l *Lifecycle) OnDeclareRole(connID, role string) error {
	r, err := ParseRole(role)
	if err != nil {
		return err
	}
	return l.registry.SetRole(connID, r)
}

// OnJoinRoom puts the connection in roomID. A connection already in another
// room leaves it first.
func (l *Lifecycle) OnJoinRoom(connID, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: empty room id", ErrNotAMember)
	}
	conn, err := l.registry.Get(connID)
	if err != nil {
		return err
	}
	if conn.RoomID != "" && conn.RoomID != roomID {
		l.leaveRoom(conn.RoomID, connID)
	}

	if created := l.directory.Join(roomID, connID); created {
		l.observer.RoomOpened(roomID)
	}
	if err := l.registry.SetRoom(connID, roomID); err != nil {
		return err
	}
	zap.L().Debug("relay.join", zap.String("conn", connID), zap.String("room", roomID))
	return nil
}

func (l *Lifecycle) OnDriverLocation(connID, roomID string, loc Location) error {
	l.inferRole(connID, RoleDriver)
	return l.engine.DriverLocation(connID, roomID, loc)
}

func (l *Lifecycle) OnUserLocation(connID, roomID string, loc Location) error {
	l.inferRole(connID, RoleUser)
	return l.engine.UserLocation(connID, roomID, loc)
}

func (l *Lifecycle) inferRole(connID string, role Role) {
	if conn, err := l.registry.Get(connID); err == nil && conn.Role == RoleUnset {
		_ = l.registry.SetRole(connID, role)
	}
}

// OnDisconnect removes the connection everywhere and tells the rest of the
// room, or deletes the room if it is now empty. The registry entry is dropped
// under the room lock, so no snapshot lists a connection that is gone.
func (l *Lifecycle) OnDisconnect(connID string) error {
	conn, err := l.registry.Get(connID)
	if err != nil {
		return err
	}
	if conn.RoomID == "" {
		_, err = l.registry.Unregister(connID)
		return err
	}

	var unregErr error
	l.departRoom(conn.RoomID, connID, func() {
		_, unregErr = l.registry.Unregister(connID)
	})
	if unregErr != nil {
		return unregErr
	}
	zap.L().Debug("relay.disconnect", zap.String("conn", connID), zap.String("room", conn.RoomID))
	return nil
}

func (l *Lifecycle) leaveRoom(roomID, connID string) {
	l.departRoom(roomID, connID, nil)
}

func (l *Lifecycle) departRoom(roomID, connID string, detach func()) {
	empty, err := l.directory.Depart(roomID, connID, detach, func(snap Snapshot) {
		l.engine.AnnounceSnapshot(roomID, snap)
	})
	if err != nil {
		zap.L().Warn("relay.leave", zap.String("conn", connID), zap.String("room", roomID), zap.Error(err))
		return
	}
	if empty {
		l.closeRoom(roomID)
	}
}

func (l *Lifecycle) closeRoom(roomID string) bool {
	err := l.directory.DeleteRoom(roomID)
	switch {
	case err == nil:
		l.observer.RoomClosed(roomID)
		zap.L().Debug("relay.room_closed", zap.String("room", roomID))
		return true
	case errors.Is(err, ErrRoomNotEmpty), errors.Is(err, ErrRoomNotFound):
		// someone joined in between, or another path already deleted it
		return false
	default:
		zap.L().Error("relay.delete_room", zap.String("room", roomID), zap.Error(err))
		return false
	}
}

// Sweep deletes rooms left empty and returns how many were removed.
func (l *Lifecycle) Sweep() int {
	n := 0
	for _, id := range l.directory.EmptyRooms() {
		if l.closeRoom(id) {
			n++
		}
	}
	return n
}

func (l *Lifecycle) Registry() *Registry   { return l.registry }
func (l *Lifecycle) Directory() *Directory { return l.directory }

package relay

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type Role string

const (
	RoleUnset  Role = ""
	RoleDriver Role = "driver"
	RoleUser   Role = "user"
)

// ParseRole accepts only the two declared roles.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDriver, RoleUser:
		return Role(s), nil
	}
	return RoleUnset, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Sink is the transport side of a connection. Enqueue must not block: it
// reports false when the message could not be queued.
type Sink interface {
	Enqueue(msg []byte) bool
	Close()
}

// Connection is the registry record of one live transport session.
type Connection struct {
	ID     string
	RoomID string
	Role   Role

	sink Sink
}

// Envelope is the frame written to every connection.
type Envelope struct {
	Event string `json:"event"`
	Body  any    `json:"body,omitempty"`
}

// Registry tracks live connections by id.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

func (r *Registry) Register(id string, sink Sink) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateConnection, id)
	}
	c := &Connection{ID: id, sink: sink}
	r.conns[id] = c
	return c, nil
}

func (r *Registry) SetRole(id string, role Role) error {
	if role != RoleDriver && role != RoleUser {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	c.Role = role
	return nil
}

func (r *Registry) SetRoom(id, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	c.RoomID = roomID
	return nil
}

// Get returns a copy of the connection record.
func (r *Registry) Get(id string) (Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return Connection{}, fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	return *c, nil
}

// Unregister removes the connection and returns its last state so the caller
// can clean up the room it was in.
func (r *Registry) Unregister(id string) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return Connection{}, fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	delete(r.conns, id)
	return *c, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send delivers one event to a single connection, best effort.
func (r *Registry) Send(id, event string, payload any) {
	r.Broadcast([]string{id}, event, payload)
}

// Broadcast encodes the event once and queues it on every listed connection.
// Unknown ids are skipped. A connection whose queue is full is closed; its
// transport then runs the normal disconnect path.
func (r *Registry) Broadcast(ids []string, event string, payload any) {
	if len(ids) == 0 {
		return
	}
	msg, err := json.Marshal(Envelope{Event: event, Body: payload})
	if err != nil {
		zap.L().Error("relay.encode", zap.String("event", event), zap.Error(err))
		return
	}

	var slow []Sink
	r.mu.RLock()
	for _, id := range ids {
		c, ok := r.conns[id]
		if !ok || c.sink == nil {
			continue
		}
		if !c.sink.Enqueue(msg) {
			zap.L().Warn("relay.drop_slow_conn", zap.String("conn", id), zap.String("event", event))
			slow = append(slow, c.sink)
		}
	}
	r.mu.RUnlock()

	for _, s := range slow {
		s.Close()
	}
}

// CloseAll closes every registered sink. Entries stay until each transport
// reports its disconnect.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.conns))
	for _, c := range r.conns {
		if c.sink != nil {
			sinks = append(sinks, c.sink)
		}
	}
	r.mu.RUnlock()

	for _, s := range sinks {
		s.Close()
	}
}

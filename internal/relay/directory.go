package relay

import (
	"fmt"
	"sync"
)

type roomState int

const (
	roomActive roomState = iota
	// pendingDeletion: last member left, DeleteRoom has not run yet. A join
	// in this state revives the room.
	roomPendingDeletion
	// closed: removed from the directory. Holders of a stale pointer retry.
	roomClosed
)

// MemberLocation is one snapshot entry. Location is nil until the member
// reports one.
type MemberLocation struct {
	ConnectionID string    `json:"connectionId"`
	Location     *Location `json:"location"`
}

// Snapshot lists room members in join order.
type Snapshot []MemberLocation

// Located keeps only the entries that carry a location.
func (s Snapshot) Located() Snapshot {
	out := make(Snapshot, 0, len(s))
	for _, m := range s {
		if m.Location != nil {
			out = append(out, m)
		}
	}
	return out
}

// IDs returns the member connection ids in snapshot order.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s))
	for i, m := range s {
		ids[i] = m.ConnectionID
	}
	return ids
}

type room struct {
	mu        sync.Mutex
	id        string
	state     roomState
	members   []string
	locations map[string]Location
}

func newRoom(id string) *room {
	return &room{id: id, locations: make(map[string]Location)}
}

func (r *room) indexOf(connID string) int {
	for i, m := range r.members {
		if m == connID {
			return i
		}
	}
	return -1
}

func (r *room) snapshot() Snapshot {
	snap := make(Snapshot, 0, len(r.members))
	for _, m := range r.members {
		entry := MemberLocation{ConnectionID: m}
		if loc, ok := r.locations[m]; ok {
			entry.Location = &loc
		}
		snap = append(snap, entry)
	}
	return snap
}

// RoomInfo is a summary used by the inspection API and the sweeper.
type RoomInfo struct {
	ID      string `json:"roomId"`
	Members int    `json:"members"`
	Located int    `json:"located"`
}

// Directory owns every room. Rooms are locked individually; the directory
// lock only guards the id -> room map and is always taken before a room lock.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*room)}
}

func (d *Directory) lookup(roomID string) *room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rooms[roomID]
}

// Join adds connID to the room, creating it when absent. created reports
// whether this call brought the room into existence.
func (d *Directory) Join(roomID, connID string) (created bool) {
	for {
		d.mu.Lock()
		r, ok := d.rooms[roomID]
		if !ok {
			r = newRoom(roomID)
			d.rooms[roomID] = r
			created = true
		}
		d.mu.Unlock()

		r.mu.Lock()
		if r.state == roomClosed {
			r.mu.Unlock()
			created = false
			continue
		}
		r.state = roomActive
		if r.indexOf(connID) < 0 {
			r.members = append(r.members, connID)
		}
		r.mu.Unlock()
		return created
	}
}

// Leave removes connID and its cached location. When members remain, notify
// is called with the new snapshot while the room is still locked.
func (d *Directory) Leave(roomID, connID string, notify func(Snapshot)) (empty bool, err error) {
	return d.Depart(roomID, connID, nil, notify)
}

// Depart is Leave with a detach hook that runs under the room lock before the
// member is removed. It runs even when the leave itself fails, so callers can
// pair it with their own cleanup. Snapshots built for the room never list a
// member that detach has already released.
func (d *Directory) Depart(roomID, connID string, detach func(), notify func(Snapshot)) (empty bool, err error) {
	r := d.lookup(roomID)
	if r == nil {
		if detach != nil {
			detach()
		}
		return false, fmt.Errorf("%w: %s", ErrNotAMember, roomID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if detach != nil {
		detach()
	}
	i := r.indexOf(connID)
	if i < 0 || r.state == roomClosed {
		return false, fmt.Errorf("%w: %s", ErrNotAMember, roomID)
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	delete(r.locations, connID)

	if len(r.members) == 0 {
		r.state = roomPendingDeletion
		return true, nil
	}
	if notify != nil {
		notify(r.snapshot())
	}
	return false, nil
}

// RecordLocation stores the member's latest location and calls notify with
// the resulting snapshot under the room lock, so concurrent updates are
// delivered in the order they were applied.
func (d *Directory) RecordLocation(roomID, connID string, loc Location, notify func(Snapshot)) error {
	r := d.lookup(roomID)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrNotAMember, roomID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == roomClosed || r.indexOf(connID) < 0 {
		return fmt.Errorf("%w: %s", ErrNotAMember, roomID)
	}
	r.locations[connID] = loc
	if notify != nil {
		notify(r.snapshot())
	}
	return nil
}

func (d *Directory) MembersWithLocations(roomID string) (Snapshot, error) {
	r := d.lookup(roomID)
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == roomClosed {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return r.snapshot(), nil
}

// Members returns the member ids in join order.
func (d *Directory) Members(roomID string) ([]string, error) {
	snap, err := d.MembersWithLocations(roomID)
	if err != nil {
		return nil, err
	}
	return snap.IDs(), nil
}

// DeleteRoom removes an empty room. It fails with ErrRoomNotEmpty if a join
// slipped in after the last leave.
func (d *Directory) DeleteRoom(roomID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 {
		return fmt.Errorf("%w: %s", ErrRoomNotEmpty, roomID)
	}
	r.state = roomClosed
	delete(d.rooms, roomID)
	return nil
}

// EmptyRooms lists rooms waiting for deletion.
func (d *Directory) EmptyRooms() []string {
	var ids []string
	for _, info := range d.Rooms() {
		if info.Members == 0 {
			ids = append(ids, info.ID)
		}
	}
	return ids
}

func (d *Directory) Rooms() []RoomInfo {
	d.mu.RLock()
	rooms := make([]*room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if r.state != roomClosed {
			out = append(out, RoomInfo{ID: r.id, Members: len(r.members), Located: len(r.locations)})
		}
		r.mu.Unlock()
	}
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

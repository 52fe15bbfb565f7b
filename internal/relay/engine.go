package relay

import (
	"fmt"

	"go.uber.org/zap"
)

// Outbound event names.
const (
	EventLocationBroadcast = "location-broadcast"
	EventMemberSnapshot    = "member-snapshot"
)

// logCellPrecision keeps coordinates in logs at roughly 5 km resolution.
const logCellPrecision = 5

type EngineOptions struct {
	ValidateLocations bool
	Observer          Observer
}

// Engine applies location events to the directory and fans out the results.
type Engine struct {
	registry  *Registry
	directory *Directory
	validate  bool
	observer  Observer
}

func NewEngine(reg *Registry, dir *Directory, opts EngineOptions) *Engine {
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Engine{
		registry:  reg,
		directory: dir,
		validate:  opts.ValidateLocations,
		observer:  obs,
	}
}

func (e *Engine) check(loc Location) error {
	if !e.validate {
		return nil
	}
	return checkLocation(loc)
}

// DriverLocation pushes loc to every other member of the room. The sender
// gets nothing back.
func (e *Engine) DriverLocation(connID, roomID string, loc Location) error {
	if err := e.check(loc); err != nil {
		return err
	}
	members, err := e.directory.Members(roomID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotAMember, roomID)
	}

	others := make([]string, 0, len(members))
	found := false
	for _, m := range members {
		if m == connID {
			found = true
			continue
		}
		others = append(others, m)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotAMember, roomID)
	}

	zap.L().Debug("relay.driver_location",
		zap.String("room", roomID),
		zap.String("cell", loc.Cell(logCellPrecision)),
		zap.Int("fanout", len(others)),
	)
	e.registry.Broadcast(others, EventLocationBroadcast, loc)
	return nil
}

// UserLocation records the user's position and sends the whole room the
// updated snapshot, the sender included.
func (e *Engine) UserLocation(connID, roomID string, loc Location) error {
	if err := e.check(loc); err != nil {
		return err
	}
	err := e.directory.RecordLocation(roomID, connID, loc, func(snap Snapshot) {
		e.AnnounceSnapshot(roomID, snap)
	})
	if err != nil {
		return err
	}

	zap.L().Debug("relay.user_location",
		zap.String("room", roomID),
		zap.String("cell", loc.Cell(logCellPrecision)),
	)
	return nil
}

// AnnounceSnapshot sends snap to all of its members. The payload lists the
// members that have reported a location, in join order.
func (e *Engine) AnnounceSnapshot(roomID string, snap Snapshot) {
	located := snap.Located()
	e.registry.Broadcast(snap.IDs(), EventMemberSnapshot, located)
	e.observer.SnapshotPublished(roomID, located)
}

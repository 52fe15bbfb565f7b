package relay

// Observer receives room events after the relay has applied them. Calls are
// made from the relay's hot path, some under a room lock: implementations
// must return immediately.
type Observer interface {
	RoomOpened(roomID string)
	RoomClosed(roomID string)
	SnapshotPublished(roomID string, snap Snapshot)
}

type nopObserver struct{}

func (nopObserver) RoomOpened(string)                  {}
func (nopObserver) RoomClosed(string)                  {}
func (nopObserver) SnapshotPublished(string, Snapshot) {}

// Observers fans each call out to every non-nil observer.
type Observers []Observer

func (o Observers) RoomOpened(roomID string) {
	for _, ob := range o {
		if ob != nil {
			ob.RoomOpened(roomID)
		}
	}
}

func (o Observers) RoomClosed(roomID string) {
	for _, ob := range o {
		if ob != nil {
			ob.RoomClosed(roomID)
		}
	}
}

func (o Observers) SnapshotPublished(roomID string, snap Snapshot) {
	for _, ob := range o {
		if ob != nil {
			ob.SnapshotPublished(roomID, snap)
		}
	}
}

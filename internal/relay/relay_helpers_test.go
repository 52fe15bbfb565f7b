package relay

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body"`
}

// fakeSink records queued frames. limit > 0 makes Enqueue fail once that many
// frames are held.
type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	limit  int
	closed bool
}

func (s *fakeSink) Enqueue(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (s.limit > 0 && len(s.frames) >= s.limit) {
		return false
	}
	s.frames = append(s.frames, msg)
	return true
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSink) decoded(t *testing.T) []frame {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame, 0, len(s.frames))
	for _, raw := range s.frames {
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

func (s *fakeSink) reset() {
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

type snapshotEntry struct {
	ConnectionID string `json:"connectionId"`
	Location     *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

func decodeSnapshot(t *testing.T, body json.RawMessage) []snapshotEntry {
	t.Helper()
	var entries []snapshotEntry
	require.NoError(t, json.Unmarshal(body, &entries))
	return entries
}

func loc(lat, lng float64) Location { return Location{Lat: lat, Lng: lng} }

type recordingObserver struct {
	mu        sync.Mutex
	opened    []string
	closed    []string
	snapshots int
}

func (o *recordingObserver) RoomOpened(id string) {
	o.mu.Lock()
	o.opened = append(o.opened, id)
	o.mu.Unlock()
}

func (o *recordingObserver) RoomClosed(id string) {
	o.mu.Lock()
	o.closed = append(o.closed, id)
	o.mu.Unlock()
}

func (o *recordingObserver) SnapshotPublished(string, Snapshot) {
	o.mu.Lock()
	o.snapshots++
	o.mu.Unlock()
}

type harness struct {
	reg *Registry
	dir *Directory
	eng *Engine
	lc  *Lifecycle
	obs *recordingObserver
}

func newHarness(validate bool) *harness {
	obs := &recordingObserver{}
	reg := NewRegistry()
	dir := NewDirectory()
	eng := NewEngine(reg, dir, EngineOptions{ValidateLocations: validate, Observer: obs})
	return &harness{reg: reg, dir: dir, eng: eng, lc: NewLifecycle(reg, dir, eng, obs), obs: obs}
}

func (h *harness) connect(t *testing.T, id string) *fakeSink {
	t.Helper()
	s := &fakeSink{}
	require.NoError(t, h.lc.OnConnect(id, s))
	return s
}

package snapshotmirror

import (
	"context"
	"encoding/json"
	"time"
	"triprelay/internal/relay"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "relay:room:"
	keySuffix = ":snapshot"
	opTimeout = 2 * time.Second
)

// Key returns the Redis key holding the latest snapshot of roomID.
func Key(roomID string) string { return keyPrefix + roomID + keySuffix }

type job struct {
	roomID  string
	payload string
	del     bool
}

// Mirror keeps the latest member-snapshot of every live room in Redis so
// that tools outside the relay can read it. Only current state is stored;
// each key expires after ttl unless refreshed.
//
// It implements relay.Observer. Events are queued and written by Run; when
// the queue is full the event is dropped, the next snapshot repairs the key.
type Mirror struct {
	rdb  *redis.Client
	ttl  time.Duration
	jobs chan job
}

var _ relay.Observer = (*Mirror)(nil)

func New(rdb *redis.Client, ttl time.Duration, buffer int) *Mirror {
	if buffer < 1 {
		buffer = 1
	}
	return &Mirror{rdb: rdb, ttl: ttl, jobs: make(chan job, buffer)}
}

func (m *Mirror) RoomOpened(string) {}

func (m *Mirror) RoomClosed(roomID string) {
	m.push(job{roomID: roomID, del: true})
}

func (m *Mirror) SnapshotPublished(roomID string, snap relay.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		zap.L().Warn("mirror.encode", zap.String("room", roomID), zap.Error(err))
		return
	}
	m.push(job{roomID: roomID, payload: string(data)})
}

func (m *Mirror) push(j job) {
	select {
	case m.jobs <- j:
	default:
		zap.L().Warn("mirror.queue_full", zap.String("room", j.roomID))
	}
}

// Run drains the queue until ctx is done. Start it once.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-m.jobs:
			if err := m.apply(ctx, j); err != nil {
				zap.L().Warn("mirror.write", zap.String("room", j.roomID), zap.Error(err))
			}
		}
	}
}

func (m *Mirror) apply(ctx context.Context, j job) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if j.del {
		return m.rdb.Del(ctx, Key(j.roomID)).Err()
	}
	return m.rdb.Set(ctx, Key(j.roomID), j.payload, m.ttl).Err()
}

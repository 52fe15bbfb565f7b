package roomlog

import (
	"context"
	"database/sql"
	"time"
	"triprelay/internal/relay"

	"go.uber.org/zap"
)

const (
	batchSize     = 100
	flushInterval = 2 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS room_sessions (
    id         BIGSERIAL PRIMARY KEY,
    room_id    TEXT        NOT NULL,
    opened_at  TIMESTAMPTZ NOT NULL,
    closed_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS room_sessions_open_idx
    ON room_sessions (room_id) WHERE closed_at IS NULL`

type kind int

const (
	opened kind = iota
	closed
)

type event struct {
	kind   kind
	roomID string
	at     time.Time
}

// Recorder writes when rooms open and close to Postgres. Locations are never
// stored. It implements relay.Observer and never blocks the caller: events
// are queued and persisted in batches by Run.
type Recorder struct {
	db     *sql.DB
	events chan event
}

var _ relay.Observer = (*Recorder)(nil)

func New(db *sql.DB, buffer int) *Recorder {
	if buffer < 1 {
		buffer = 1
	}
	return &Recorder{db: db, events: make(chan event, buffer)}
}

// EnsureSchema creates the room_sessions table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (r *Recorder) RoomOpened(roomID string) { r.push(event{opened, roomID, time.Now().UTC()}) }
func (r *Recorder) RoomClosed(roomID string) { r.push(event{closed, roomID, time.Now().UTC()}) }

func (r *Recorder) SnapshotPublished(string, relay.Snapshot) {}

func (r *Recorder) push(e event) {
	select {
	case r.events <- e:
	default:
		zap.L().Warn("roomlog.queue_full", zap.String("room", e.roomID))
	}
}

// Run batches queued events and persists them until ctx is done. Pending
// events are flushed on the way out.
func (r *Recorder) Run(ctx context.Context) {
	tk := time.NewTicker(flushInterval)
	defer tk.Stop()

	pending := make([]event, 0, batchSize)
	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := persist(ctx, r.db, pending); err != nil {
			zap.L().Error("roomlog.persist", zap.Int("events", len(pending)), zap.Error(err))
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		drain:
			for {
				select {
				case e := <-r.events:
					pending = append(pending, e)
				default:
					break drain
				}
			}
			flush(drainCtx)
			cancel()
			return
		case e := <-r.events:
			pending = append(pending, e)
			if len(pending) >= batchSize {
				flush(ctx)
			}
		case <-tk.C:
			flush(ctx)
		}
	}
}

func persist(ctx context.Context, db *sql.DB, events []event) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const ins = `INSERT INTO room_sessions (room_id, opened_at) VALUES ($1, $2)`
	const upd = `UPDATE room_sessions SET closed_at = $2
	              WHERE room_id = $1 AND closed_at IS NULL`
	for _, e := range events {
		q := ins
		if e.kind == closed {
			q = upd
		}
		if _, err := tx.ExecContext(ctx, q, e.roomID, e.at); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Table is the journal table name.
const Table = "realtime_frames"

// Columns lists the columns written by COPY, in order.
var Columns = []string{"instance_id", "channel", "frame_type", "payload", "received_at"}

// Schema creates the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS realtime_frames (
	id          BIGSERIAL PRIMARY KEY,
	instance_id TEXT        NOT NULL,
	channel     TEXT        NOT NULL,
	frame_type  TEXT        NOT NULL,
	payload     JSONB       NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS realtime_frames_received_at_idx
	ON realtime_frames (channel, received_at);
`

// DB is the subset of *pgxpool.Pool the writer needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Config holds batching settings.
type Config struct {
	InstanceID    string
	BatchSize     int           // Rows per COPY
	FlushInterval time.Duration // Max time a row waits in a partial batch
	BufferSize    int           // Max queued rows; newer frames are dropped beyond this
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// Stats contains writer counters.
type Stats struct {
	Queued   int64 // Frames accepted into the buffer
	Dropped  int64 // Frames rejected because the buffer was full
	Inserted int64 // Rows written
	Flushes  int64 // Successful COPY calls
	Errors   int64 // Failed COPY calls
}

// row is one journal entry.
type row struct {
	Channel    string
	FrameType  string
	Payload    []byte
	ReceivedAt time.Time
}

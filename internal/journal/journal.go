package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonboulle/clockwork"
)

// DB is the subset of *pgxpool.Pool the journal uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Entry is one failed write.
type Entry struct {
	Operation string // "update" or "transition"
	ID        string // Board entry id
	OrderID   string
	Payload   any // Request body that failed, stored as JSON
	Err       error
	At        time.Time
}

// Config holds batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns the default batching settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     50,
		FlushInterval: 5 * time.Second,
	}
}

// Stats counts journal activity.
type Stats struct {
	Recorded int64
	Inserts  int64
	Errors   int64
	Flushes  int64
}

const schema = `
CREATE TABLE IF NOT EXISTS kds_write_failures (
	id          BIGSERIAL PRIMARY KEY,
	operation   TEXT NOT NULL,
	entry_id    TEXT NOT NULL,
	order_id    TEXT NOT NULL,
	payload     JSONB,
	error       TEXT NOT NULL,
	failed_at   TIMESTAMPTZ NOT NULL
)`

const insertEntry = `
INSERT INTO kds_write_failures (operation, entry_id, order_id, payload, error, failed_at)
VALUES ($1, $2, $3, $4, $5, $6)`

type row struct {
	operation string
	id        string
	orderID   string
	payload   []byte
	err       string
	at        time.Time
}

// Journal batches failed writes into the kds_write_failures table.
type Journal struct {
	cfg    Config
	db     DB
	clock  clockwork.Clock
	logger *slog.Logger

	batch   []row
	batchMu sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Journal. clock may be nil.
func New(cfg Config, db DB, clock clockwork.Clock, logger *slog.Logger) *Journal {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		cfg:    cfg,
		db:     db,
		clock:  clock,
		logger: logger,
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the journal table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}
	return nil
}

// Start begins the periodic flush loop.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	ticker := j.clock.NewTicker(j.cfg.FlushInterval)
	j.wg.Add(1)
	go j.flushLoop(ticker)

	j.logger.Info("write journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop ends the flush loop and writes whatever is still batched.
func (j *Journal) Stop(ctx context.Context) error {
	j.logger.Info("stopping write journal")

	if j.cancel != nil {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		j.logger.Warn("write journal stop timed out")
	}

	j.flush(ctx)
	return nil
}

// Record queues a failed write. It never blocks on the database.
func (j *Journal) Record(e Entry) {
	if e.At.IsZero() {
		e.At = j.clock.Now()
	}

	r := row{
		operation: e.Operation,
		id:        e.ID,
		orderID:   e.OrderID,
		at:        e.At,
	}
	if e.Err != nil {
		r.err = e.Err.Error()
	}
	if e.Payload != nil {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			j.logger.Warn("journal payload not serializable", "id", e.ID, "error", err)
		} else {
			r.payload = data
		}
	}

	j.batchMu.Lock()
	j.batch = append(j.batch, r)
	j.stats.Recorded++
	shouldFlush := len(j.batch) >= j.cfg.BatchSize
	j.batchMu.Unlock()

	if shouldFlush {
		go j.flush(j.flushContext())
	}
}

// Pending returns the number of entries not yet flushed.
func (j *Journal) Pending() int {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	return len(j.batch)
}

// Stats returns current counters.
func (j *Journal) Stats() Stats {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	return j.stats
}

func (j *Journal) flushLoop(ticker clockwork.Ticker) {
	defer j.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.Chan():
			j.flush(j.ctx)
		}
	}
}

func (j *Journal) flushContext() context.Context {
	if j.ctx != nil && j.ctx.Err() == nil {
		return j.ctx
	}
	return context.Background()
}

// flush writes the current batch. Rows that fail to insert are dropped
// after logging; the journal is best effort.
func (j *Journal) flush(ctx context.Context) {
	j.batchMu.Lock()
	if len(j.batch) == 0 {
		j.batchMu.Unlock()
		return
	}
	batch := j.batch
	j.batch = make([]row, 0, j.cfg.BatchSize)
	j.batchMu.Unlock()

	start := j.clock.Now()

	inserted, err := j.insert(ctx, batch)

	j.batchMu.Lock()
	j.stats.Inserts += int64(inserted)
	if err != nil {
		j.stats.Errors++
	} else {
		j.stats.Flushes++
	}
	j.batchMu.Unlock()

	if err != nil {
		j.logger.Error("journal flush failed", "error", err, "count", len(batch))
		return
	}
	j.logger.Debug("flushed write journal",
		"count", len(batch),
		"duration", j.clock.Since(start),
	)
}

func (j *Journal) insert(ctx context.Context, rows []row) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertEntry, r.operation, r.id, r.orderID, r.payload, r.err, r.at)
	}

	results := j.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range rows {
		if _, err := results.Exec(); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

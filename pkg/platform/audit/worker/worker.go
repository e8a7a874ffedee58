// Package worker drains the audit outbox into Kafka. Rows are claimed in
// small batches, published, then marked as sent, so a crash between publish
// and mark yields at-least-once delivery (consumers deduplicate on event ID).
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const (
	defaultTopic     = "civreg.audit.events"
	defaultBatchSize = 100
	defaultInterval  = time.Second
)

// Worker polls the audit_outbox table and publishes pending rows to Kafka.
type Worker struct {
	db     *sql.DB
	client *kgo.Client
	logger *zap.Logger

	topic     string
	batchSize int
	interval  time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

// WithTopic overrides the destination topic.
func WithTopic(topic string) Option {
	return func(w *Worker) {
		if topic != "" {
			w.topic = topic
		}
	}
}

// WithBatchSize overrides how many outbox rows are claimed per poll.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithPollInterval overrides the idle poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// New constructs an outbox worker. The Kafka client is owned by the caller.
func New(db *sql.DB, client *kgo.Client, logger *zap.Logger, opts ...Option) *Worker {
	w := &Worker{
		db:        db,
		client:    client,
		logger:    logger,
		topic:     defaultTopic,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// EnsureTopic creates the audit topic when missing. Idempotent.
func (w *Worker) EnsureTopic(ctx context.Context, partitions int32, replicas int16) error {
	adm := kadm.NewClient(w.client)
	resp, err := adm.CreateTopic(ctx, partitions, replicas, nil, w.topic)
	if err != nil {
		return fmt.Errorf("ensure audit topic %q: %w", w.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("ensure audit topic %q: %w", w.topic, resp.Err)
	}
	return nil
}

// Run polls until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				// Transient broker/database failures are retried on the next
				// tick; the outbox keeps the events durable meanwhile.
				w.logger.Warn("audit outbox drain failed", zap.Error(err))
			}
		}
	}
}

type outboxRow struct {
	id      string
	payload []byte
}

func (w *Worker) drainOnce(ctx context.Context) error {
	rows, err := w.claim(ctx)
	if err != nil || len(rows) == 0 {
		return err
	}

	records := make([]*kgo.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, &kgo.Record{
			Topic: w.topic,
			Key:   []byte(row.id),
			Value: row.payload,
		})
	}

	results := w.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("produce audit events: %w", err)
	}

	if err := w.markSent(ctx, rows); err != nil {
		return err
	}
	w.logger.Debug("audit outbox drained", zap.Int("events", len(rows)))
	return nil
}

func (w *Worker) claim(ctx context.Context) ([]outboxRow, error) {
	dbRows, err := w.db.QueryContext(ctx, `
		SELECT id, payload
		FROM audit_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, w.batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	defer dbRows.Close()

	var rows []outboxRow
	for dbRows.Next() {
		var row outboxRow
		if err := dbRows.Scan(&row.id, &row.payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, dbRows.Err()
}

func (w *Worker) markSent(ctx context.Context, rows []outboxRow) error {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.id
	}
	_, err := w.db.ExecContext(ctx, `
		UPDATE audit_outbox
		SET sent_at = NOW()
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox rows sent: %w", err)
	}
	return nil
}

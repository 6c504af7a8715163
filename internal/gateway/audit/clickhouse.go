// Package audit implements the asynchronous, best-effort Audit Event sink.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// Sink accepts AuditEvents on a bounded channel and flushes them to
// ClickHouse in the background. A full channel drops the event rather
// than blocking the caller; audit writes are best-effort per design.
type Sink struct {
	conn   clickhouse.Conn
	table  string
	log    zerolog.Logger
	events chan model.AuditEvent
	done   chan struct{}
}

// NewSink opens a ClickHouse connection from dsn and starts the background
// flusher. table defaults to "audit_events" if empty.
func NewSink(ctx context.Context, dsn, table string, log zerolog.Logger) (*Sink, error) {
	if table == "" {
		table = "audit_events"
	}
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	s := &Sink{
		conn:   conn,
		table:  table,
		log:    log,
		events: make(chan model.AuditEvent, 1024),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Init creates the audit_events table if it does not already exist.
func (s *Sink) Init(ctx context.Context) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id String,
    tenant_id String,
    conversation_id String,
    kind String,
    detail String,
    created_at DateTime64(3)
) ENGINE = MergeTree()
ORDER BY (tenant_id, created_at)`, s.table))
}

// Record enqueues an AuditEvent for asynchronous write. Never blocks; if
// the queue is full the event is dropped and logged at warn.
func (s *Sink) Record(ev model.AuditEvent) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Str("tenant_id", ev.TenantID).Str("kind", ev.Kind).Msg("audit queue full, dropping event")
	}
}

// Close stops the flusher after draining pending events and closes the
// underlying connection.
func (s *Sink) Close() {
	close(s.events)
	<-s.done
	s.conn.Close()
}

func (s *Sink) run() {
	defer close(s.done)
	for ev := range s.events {
		if err := s.flush(ev); err != nil {
			s.log.Warn().Err(err).Str("tenant_id", ev.TenantID).Msg("audit flush failed, dropping event")
		}
	}
}

func (s *Sink) flush(ev model.AuditEvent) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (id, tenant_id, conversation_id, kind, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`, s.table),
		ev.ID, ev.TenantID, ev.ConversationID, ev.Kind, string(detail), ev.CreatedAt)
}

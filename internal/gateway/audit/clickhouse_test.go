package audit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

func TestNewSinkRejectsInvalidDSN(t *testing.T) {
	t.Parallel()

	_, err := NewSink(context.Background(), "://not-a-dsn", "", zerolog.Nop())

	require.Error(t, err)
}

func TestSinkRecordDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	s := &Sink{
		table:  "audit_events",
		log:    zerolog.Nop(),
		events: make(chan model.AuditEvent, 1),
		done:   make(chan struct{}),
	}

	s.Record(model.AuditEvent{ID: "1", Kind: "a", CreatedAt: time.Now()})
	// Queue now full (capacity 1, flusher not running); this one must be
	// dropped rather than block the caller.
	done := make(chan struct{})
	go func() {
		s.Record(model.AuditEvent{ID: "2", Kind: "b", CreatedAt: time.Now()})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	assert.Len(t, s.events, 1)
}

package ingestion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/semaphore"
)

// Consumer reads ingestion events off a Kafka topic and runs them through a
// Processor, honoring a concurrency cap and a per-event retry budget before
// routing to the dead-letter topic.
type Consumer struct {
	Reader      *kafka.Reader
	DLQWriter   *kafka.Writer
	Processor   *Processor
	Concurrency int
	MaxRetries  int
}

// NewConsumer builds a Consumer reading commandsTopic from brokers under
// groupID, publishing permanently-failed events to dlqTopic.
func NewConsumer(brokers []string, groupID, commandsTopic, dlqTopic string, processor *Processor, concurrency, maxRetries int) *Consumer {
	if concurrency <= 0 {
		concurrency = 5
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    commandsTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	dlq := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    dlqTopic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Consumer{Reader: reader, DLQWriter: dlq, Processor: processor, Concurrency: concurrency, MaxRetries: maxRetries}
}

// Run blocks, fetching messages and dispatching them across Concurrency
// concurrent workers, until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.Reader.Close()
	defer c.DLQWriter.Close()

	sem := semaphore.NewWeighted(int64(c.Concurrency))

	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		go func(m kafka.Message) {
			defer sem.Release(1)
			c.handle(ctx, m)
			if err := c.Reader.CommitMessages(ctx, m); err != nil {
				log.Error().Err(err).Msg("ingestion: commit failed")
			}
		}(msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ev, err := DecodeEvent(msg.Value)
	if err != nil {
		log.Error().Err(err).Msg("ingestion: malformed event, routing to dlq")
		c.publishDLQ(ctx, msg.Key, msg.Value, err.Error())
		return
	}

	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries+1; attempt++ {
		lastErr = c.Processor.Process(ctx, ev)
		if lastErr == nil {
			return
		}
		if attempt <= c.MaxRetries {
			log.Warn().Err(lastErr).Str("sourceId", ev.SourceID).Int("attempt", attempt).Msg("ingestion: step failed, retrying")
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
		}
	}
	log.Error().Err(lastErr).Str("sourceId", ev.SourceID).Msg("ingestion: retries exhausted, routing to dlq")
	c.publishDLQ(ctx, msg.Key, msg.Value, lastErr.Error())
}

func (c *Consumer) publishDLQ(ctx context.Context, key, value []byte, reason string) {
	envelope := map[string]any{"originalKey": string(key), "originalValue": json.RawMessage(value), "error": reason}
	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Error().Err(err).Msg("ingestion: failed to marshal dlq envelope")
		return
	}
	if err := c.DLQWriter.WriteMessages(ctx, kafka.Message{Key: key, Value: payload}); err != nil {
		log.Error().Err(err).Msg("ingestion: failed to publish to dlq")
	}
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/ZulAmi/proofwork-reputation/internal/metrics"
)

// KafkaConsumer binds the ledger's review feed topic to the listener queue.
// Offsets are committed by the consumer group after ReadMessage returns, so
// delivery is at-least-once and duplicates are expected downstream.
type KafkaConsumer struct {
	reader   *kafka.Reader
	listener *Listener
}

// wireReviewEvent is the feed's JSON schema. Timestamps arrive as unix
// seconds.
type wireReviewEvent struct {
	ReviewerID string `json:"reviewerId"`
	SubjectID  string `json:"subjectId"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
	Timestamp  int64  `json:"timestamp"`
}

func NewKafkaConsumer(brokers []string, topic, groupID string, listener *Listener) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: time.Second,
	})
	return &KafkaConsumer{reader: reader, listener: listener}
}

// Run consumes the feed until ctx is canceled. Malformed and invalid
// messages are logged and skipped; the feed must keep moving.
func (c *KafkaConsumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			slog.Error("Reading from review feed failed", "error", err)
			continue
		}

		var wire wireReviewEvent
		if err := json.Unmarshal(msg.Value, &wire); err != nil {
			metrics.EventsDroppedTotal.WithLabelValues("malformed").Inc()
			slog.Warn("Dropping malformed feed message",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}

		event := domain.ReviewEvent{
			ReviewerID: wire.ReviewerID,
			SubjectID:  wire.SubjectID,
			Rating:     wire.Rating,
			Comment:    wire.Comment,
			Timestamp:  time.Unix(wire.Timestamp, 0).UTC(),
		}
		if err := c.listener.Submit(event); err != nil && !errors.Is(err, ErrQueueFull) {
			slog.Warn("Dropping invalid feed event",
				"subjectId", wire.SubjectID,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

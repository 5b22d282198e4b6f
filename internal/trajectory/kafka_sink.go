package trajectory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// KafkaSink tees every record onto a Kafka topic for downstream analytics
// consumers, async and best-effort — a dropped message never affects the
// run (the NDJSON file remains authoritative per spec.md §5).
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink constructs a sink writing to topic across brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (s *KafkaSink) Write(rec Record) {
	if s == nil || s.writer == nil {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(rec.RunID), Value: b}); err != nil {
		log.Warn().Err(err).Str("kind", rec.Kind).Msg("trajectory kafka tee failed")
	}
}

func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/hidrosfera/climdex-etl/internal/config"
	"github.com/hidrosfera/climdex-etl/internal/domain"
)

// Publisher produces finished index records to a Kafka topic.
// It implements pipeline.RecordPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured records topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishRecords serializes and publishes a unit's index records in a single
// WriteMessages call for efficiency.
func (p *Publisher) PublishRecords(ctx context.Context, records []domain.ClimateIndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeRecord(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeRecord marshals a ClimateIndexRecord into a Kafka message. The key
// groups all records of one series so per-series ordering survives
// partitioning.
func serializeRecord(rec domain.ClimateIndexRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize index record: %w", err)
	}
	key := fmt.Sprintf("%s|%s|%s", rec.City, rec.Model, rec.Scenario)
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "index", Value: []byte(rec.Index)},
			{Key: "year", Value: []byte(strconv.Itoa(rec.Year))},
		},
	}, nil
}

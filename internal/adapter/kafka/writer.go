package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/config"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

// messageWriter is the subset of kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes output records to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer messageWriter
	runID  string
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic. Every message
// carries runID so consumers can group the rows of one run.
func NewWriter(cfg *config.Config, runID string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, runID: runID, logger: logger}
}

// LoadBatch serializes and publishes the records in a single WriteMessages
// call. Records of one table share a key and so land on one partition in order.
func (w *Writer) LoadBatch(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i, r := range records {
		msg, err := serializeToMessage(r, w.runID)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records: %w", len(msgs), err)
	}
	w.logger.Debug("records published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// envelope is the JSON value of a record message. Values are the formatted
// CSV fields keyed by column name.
type envelope struct {
	Kind   string            `json:"kind"`
	Table  string            `json:"table"`
	RunID  string            `json:"run_id"`
	Values map[string]string `json:"values"`
}

// serializeToMessage marshals a record into a Kafka message keyed by its table.
func serializeToMessage(r domain.Record, runID string) (kafkago.Message, error) {
	header, fields := r.Header(), r.Fields()
	if len(header) != len(fields) {
		return kafkago.Message{}, fmt.Errorf("serialize %s record: %d columns but %d fields", r.Kind(), len(header), len(fields))
	}
	values := make(map[string]string, len(header))
	for i, col := range header {
		values[col] = fields[i]
	}
	data, err := json.Marshal(envelope{Kind: r.Kind(), Table: r.Table(), RunID: runID, Values: values})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s record: %w", r.Kind(), err)
	}
	return kafkago.Message{
		Key:   []byte(r.Table()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "table", Value: []byte(r.Table())},
			{Key: "kind", Value: []byte(r.Kind())},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}

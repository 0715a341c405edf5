package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"

	"marketplace/internal/models"
)

// KafkaSink publishes every audit entry as JSON, keyed by order id so one
// order's events stay on one partition.
type KafkaSink struct {
	writer *kafkaGo.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafkaGo.Writer{
			Addr:         kafkaGo.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkaGo.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafkaGo.RequireOne,
		},
	}
}

func (k *KafkaSink) Write(ctx context.Context, entry models.OrderLog) error {
	msg, err := encodeMessage(entry)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func encodeMessage(entry models.OrderLog) (kafkaGo.Message, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return kafkaGo.Message{}, fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	return kafkaGo.Message{
		Key:   []byte(entry.OrderID.Hex()),
		Value: payload,
		Headers: []kafkaGo.Header{
			{Key: "eventType", Value: []byte(entry.EventType)},
		},
	}, nil
}

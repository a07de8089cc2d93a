package notify

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/isabella232/sdc-amon/pkg/event"
	"github.com/isabella232/sdc-amon/pkg/model"
)

// KafkaConfig configures the kafka notifier.
type KafkaConfig struct {
	Endpoints []string `json:"endpoints"`
}

type kafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafka returns the notifier behind the "kafka" medium. The contact data
// names the topic; the message key is the account UUID so one account's
// events stay ordered within a partition.
func NewKafka(cfg KafkaConfig) Notifier {
	return &kafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Endpoints...),
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

func (n *kafkaNotifier) Medium() string { return "kafka" }

func (n *kafkaNotifier) Notify(ctx context.Context, ev *event.Event, contact *model.Contact) error {
	msg, err := kafkaMessage(ev, contact)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

func kafkaMessage(ev *event.Event, contact *model.Contact) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: contact.Data,
		Key:   []byte(ev.User),
		Value: value,
	}, nil
}

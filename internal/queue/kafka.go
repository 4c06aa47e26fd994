package queue

import (
	"context"
	"encoding/json"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/emrgen/linksync/internal/migration"
	"github.com/sirupsen/logrus"
)

// DefaultTopic receives migration notifications when no topic is configured.
var DefaultTopic = "linksync.migration.notifications"

// Producer is the subset of *kafka.Producer used by KafkaNotifier.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

var (
	_ Producer           = (*kafka.Producer)(nil)
	_ migration.Notifier = (*KafkaNotifier)(nil)
)

// NewProducer connects a kafka producer to a comma separated broker list.
func NewProducer(brokers string) (*kafka.Producer, error) {
	return kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         "linksync",
		"acks":              "all",
	})
}

// KafkaNotifier publishes orchestrator notifications keyed by course, so the
// notifications of one course stay ordered within a partition.
type KafkaNotifier struct {
	producer Producer
	topic    string
	done     chan struct{}
}

func NewKafkaNotifier(producer Producer, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	n := &KafkaNotifier{
		producer: producer,
		topic:    topic,
		done:     make(chan struct{}),
	}
	go n.deliveries()

	return n
}

func (k *KafkaNotifier) Notify(_ context.Context, n migration.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return err
	}

	return k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(n.Course),
		Value:          value,
		Headers:        []kafka.Header{{Key: "kind", Value: []byte(n.Kind)}},
	}, nil)
}

// Close flushes pending messages and closes the producer.
func (k *KafkaNotifier) Close() {
	if remaining := k.producer.Flush(5000); remaining > 0 {
		logrus.Warnf("%d migration notifications were not delivered", remaining)
	}
	k.producer.Close()
	<-k.done
}

func (k *KafkaNotifier) deliveries() {
	defer close(k.done)

	for e := range k.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				logrus.Errorf("failed to deliver notification of %s: %v", ev.Key, ev.TopicPartition.Error)
			}
		case kafka.Error:
			logrus.Errorf("kafka: %v", ev)
		}
	}
}

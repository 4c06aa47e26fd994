package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/emrgen/linksync/internal/migration"
	"github.com/emrgen/linksync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu       sync.Mutex
	messages []*kafka.Message
	events   chan kafka.Event
	err      error
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{events: make(chan kafka.Event, 8)}
}

func (f *fakeProducer) Produce(msg *kafka.Message, _ chan kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	f.events <- msg
	return nil
}

func (f *fakeProducer) Events() chan kafka.Event {
	return f.events
}

func (f *fakeProducer) Flush(int) int {
	return 0
}

func (f *fakeProducer) Close() {
	close(f.events)
}

func TestKafkaNotifier(t *testing.T) {
	producer := newFakeProducer()
	notifier := NewKafkaNotifier(producer, "")

	task := &model.MigrationTask{UUID: "b7f3", State: model.TaskStateSucceeded}
	err := notifier.Notify(context.Background(), migration.Notification{
		Kind:     migration.NotificationSucceeded,
		Course:   "course-v1:X+Y+Z",
		TaskUUID: task.UUID,
		Task:     task,
	})
	require.NoError(t, err)
	notifier.Close()

	require.Len(t, producer.messages, 1)
	msg := producer.messages[0]
	assert.Equal(t, DefaultTopic, *msg.TopicPartition.Topic)
	assert.Equal(t, "course-v1:X+Y+Z", string(msg.Key))
	assert.Equal(t, "succeeded", string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "b7f3", decoded["task_uuid"])
	assert.Equal(t, "Succeeded", decoded["task"].(map[string]any)["state"])
}

func TestKafkaNotifierProduceError(t *testing.T) {
	producer := newFakeProducer()
	producer.err = errors.New("queue full")
	notifier := NewKafkaNotifier(producer, "notifications")
	defer notifier.Close()

	err := notifier.Notify(context.Background(), migration.Notification{Kind: migration.NotificationFailed, Course: "c"})
	assert.EqualError(t, err, "queue full")
}

// Package notify publishes terminal generation task transitions to Kafka.
package notify

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/config"
	"github.com/reusedev/shot-hub/internal/consts"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/model"
	"github.com/segmentio/kafka-go"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// URLResolver turns a stored object key into a readable URL.
type URLResolver interface {
	URL(ctx context.Context, key string) (string, error)
}

type TaskMessage struct {
	Event       string    `json:"event"`
	TaskNo      string    `json:"task_no"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	ExternalURL string    `json:"external_url,omitempty"`
	InternalKey string    `json:"internal_key,omitempty"`
	InternalURL string    `json:"internal_url,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

type KafkaNotifier struct {
	writer  MessageWriter
	urls    URLResolver
	timeout time.Duration
	now     func() time.Time
}

func NewKafkaNotifier(cfg config.Kafka, urls URLResolver) *KafkaNotifier {
	return NewKafkaNotifierWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}, urls)
}

func NewKafkaNotifierWithWriter(writer MessageWriter, urls URLResolver) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, urls: urls, timeout: 5 * time.Second, now: time.Now}
}

// Update implements observer.Observer. Only terminal transitions are published.
func (n *KafkaNotifier) Update(event string, data interface{}) {
	if event != consts.EventTaskCompleted && event != consts.EventTaskFailed {
		return
	}
	task, ok := data.(*model.GenerationTask)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	msg, err := n.message(ctx, event, task)
	if err != nil {
		logs.Logger.Err(err).Str("task_no", task.TaskNo).Msg("encode task notification")
		return
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		logs.Logger.Err(err).Str("task_no", task.TaskNo).Str("event", event).Msg("publish task notification")
		return
	}
	logs.Logger.Debug().Str("task_no", task.TaskNo).Str("event", event).Msg("task notification published")
}

func (n *KafkaNotifier) message(ctx context.Context, event string, task *model.GenerationTask) (kafka.Message, error) {
	msg := TaskMessage{
		Event:       event,
		TaskNo:      task.TaskNo,
		Kind:        task.Kind,
		Status:      task.Status,
		ExternalURL: task.ExternalURL,
		InternalKey: task.InternalKey.String,
		Reason:      task.FailedReason,
		At:          n.now().UTC(),
	}
	if msg.InternalKey != "" && n.urls != nil {
		u, err := n.urls.URL(ctx, msg.InternalKey)
		if err != nil {
			logs.Logger.Warn().Err(err).Str("task_no", task.TaskNo).Msg("resolve internal url")
		}
		msg.InternalURL = u
	}
	value, err := jsoniter.Marshal(msg)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(task.TaskNo), Value: value}, nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

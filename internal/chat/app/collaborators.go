package app

import (
	"context"
	"encoding/json"
	"time"

	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/pkg/database"
	"chat_presence_service/pkg/logger"
	"chat_presence_service/pkg/metrics"

	"github.com/segmentio/kafka-go"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Fanout live delivery across every instance
type Fanout interface {
	BroadcastRoom(ctx context.Context, roomID string, ev domain.Event, exclude ...string)
	SendToUser(ctx context.Context, userID string, ev domain.Event, exclude ...string)
	Subscribe(ctx context.Context, roomID, userID string)
	Unsubscribe(ctx context.Context, roomID, userID string)
	IsOnline(ctx context.Context, userID string) bool
}

// TypingSignals ephemeral typing state
type TypingSignals interface {
	SetTyping(ctx context.Context, roomID, userID string, isTyping bool)
}

// PushNotification what the push worker receives for an offline recipient
type PushNotification struct {
	UserID    string             `json:"user_id"`
	RoomID    string             `json:"room_id"`
	MessageID string             `json:"message_id"`
	SenderID  string             `json:"sender_id"`
	Type      domain.MessageType `json:"type"`
	Preview   string             `json:"preview"`
	SentAt    time.Time          `json:"sent_at"`
}

// PushNotifier hands notifications to the external push service
type PushNotifier interface {
	Notify(ctx context.Context, n PushNotification) error
}

// MessageEvent lifecycle event for the search indexer
type MessageEvent struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message"`
	At      time.Time       `json:"at"`
}

const (
	// MessageCreatedEvent message.created
	MessageCreatedEvent = "message.created"
	// MessageEditedEvent message.edited
	MessageEditedEvent = "message.edited"
	// MessageDeletedEvent message.deleted
	MessageDeletedEvent = "message.deleted"
)

// EventPublisher publishes message lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, ev MessageEvent) error
}

func newBreaker[T any](name string) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

type rabbitPushNotifier struct {
	repo    database.RabbitRepo
	queue   string
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewRabbitPushNotifier publish notifications as persistent JSON messages on queue
func NewRabbitPushNotifier(repo database.RabbitRepo, queue string) PushNotifier {
	return &rabbitPushNotifier{repo: repo, queue: queue, breaker: newBreaker[struct{}]("push-notifier")}
}

func (p *rabbitPushNotifier) Notify(ctx context.Context, n PushNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.repo.Publish("", p.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    n.SentAt,
			Body:         body,
		})
	})
	return err
}

// KafkaWriter the part of kafka.Writer used here
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaEventPublisher struct {
	writer  KafkaWriter
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewKafkaEventPublisher key messages by room so one room stays on one partition
func NewKafkaEventPublisher(writer KafkaWriter) EventPublisher {
	return &kafkaEventPublisher{writer: writer, breaker: newBreaker[struct{}]("message-events")}
}

func (k *kafkaEventPublisher) Publish(ctx context.Context, ev MessageEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = k.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, k.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(ev.Message.RoomID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event", Value: []byte(ev.Type)},
			},
			Time: ev.At,
		})
	})
	return err
}

type noopPushNotifier struct{}

// NewNoopPushNotifier drop notifications, for runs without a queue
func NewNoopPushNotifier() PushNotifier { return noopPushNotifier{} }

func (noopPushNotifier) Notify(ctx context.Context, n PushNotification) error {
	logger.Log.Debug("push notification skipped", zap.String("user_id", n.UserID), zap.String("message_id", n.MessageID))
	return nil
}

type noopEventPublisher struct{}

// NewNoopEventPublisher drop events, for runs without kafka
func NewNoopEventPublisher() EventPublisher { return noopEventPublisher{} }

func (noopEventPublisher) Publish(ctx context.Context, ev MessageEvent) error { return nil }

// notifyOffline fire and forget, failures are only logged
func notifyOffline(ctx context.Context, push PushNotifier, n PushNotification) {
	if err := push.Notify(ctx, n); err != nil {
		metrics.CollaboratorFailures.WithLabelValues("push").Inc()
		logger.Log.Warn("push notification failed",
			zap.String("user_id", n.UserID),
			zap.String("message_id", n.MessageID),
			zap.Error(err),
		)
	}
}

// eventPublishTimeout bound on one background publish
const eventPublishTimeout = 5 * time.Second

// publishEvent hand the event to events in the background, the caller never waits on the broker
func publishEvent(ctx context.Context, events EventPublisher, evType string, msg *domain.Message) {
	ev := MessageEvent{Type: evType, At: time.Now().UTC()}
	snapshot := *msg
	ev.Message = &snapshot
	// 請求結束後仍要送出，只保留 ctx 的值
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	go func() {
		defer cancel()
		if err := events.Publish(ctx, ev); err != nil {
			metrics.CollaboratorFailures.WithLabelValues("events").Inc()
			logger.Log.Warn("publish message event failed",
				zap.String("event", evType),
				zap.String("message_id", snapshot.ID),
				zap.Error(err),
			)
		}
	}()
}

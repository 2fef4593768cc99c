package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"chat_presence_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRabbitPushNotifier_PublishesJSON(t *testing.T) {
	repo := new(MockRabbitRepo)
	var published amqp.Publishing
	repo.On("Publish", "", "chat.push", false, false, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(4).(amqp.Publishing) }).
		Return(nil)

	n := PushNotification{UserID: "bob", RoomID: "r1", MessageID: "m1", SenderID: "alice", Type: domain.MessageText, Preview: "hi", SentAt: time.Now().UTC()}
	require.NoError(t, NewRabbitPushNotifier(repo, "chat.push").Notify(context.Background(), n))

	repo.AssertExpectations(t)
	assert.Equal(t, "application/json", published.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), published.DeliveryMode)
	var got PushNotification
	require.NoError(t, json.Unmarshal(published.Body, &got))
	assert.Equal(t, "bob", got.UserID)
	assert.Equal(t, "hi", got.Preview)
}

func TestRabbitPushNotifier_BreakerOpens(t *testing.T) {
	repo := new(MockRabbitRepo)
	repo.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("channel closed"))
	push := NewRabbitPushNotifier(repo, "chat.push")

	for i := 0; i < 5; i++ {
		assert.Error(t, push.Notify(context.Background(), PushNotification{UserID: "bob"}))
	}
	// 斷路器打開後不再呼叫 broker
	assert.Error(t, push.Notify(context.Background(), PushNotification{UserID: "bob"}))
	repo.AssertNumberOfCalls(t, "Publish", 5)
}

func TestKafkaEventPublisher_KeysByRoom(t *testing.T) {
	writer := new(MockKafkaWriter)
	var sent []kafka.Message
	writer.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil)

	msg := &domain.Message{ID: "m1", RoomID: "room-7", Content: "hello"}
	require.NoError(t, NewKafkaEventPublisher(writer).Publish(context.Background(), MessageEvent{Type: MessageCreatedEvent, Message: msg, At: time.Now()}))

	require.Len(t, sent, 1)
	assert.Equal(t, "room-7", string(sent[0].Key))
	require.Len(t, sent[0].Headers, 1)
	assert.Equal(t, MessageCreatedEvent, string(sent[0].Headers[0].Value))

	var ev MessageEvent
	require.NoError(t, json.Unmarshal(sent[0].Value, &ev))
	assert.Equal(t, "m1", ev.Message.ID)
}

func TestNoopCollaborators(t *testing.T) {
	assert.NoError(t, NewNoopPushNotifier().Notify(context.Background(), PushNotification{UserID: "bob"}))
	assert.NoError(t, NewNoopEventPublisher().Publish(context.Background(), MessageEvent{Message: &domain.Message{}}))
}

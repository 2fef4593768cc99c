package app

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/mock"
)

// MockPushNotifier mock PushNotifier
type MockPushNotifier struct {
	mock.Mock
}

// Notify mock
func (m *MockPushNotifier) Notify(ctx context.Context, n PushNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockEventPublisher mock EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

// Publish mock
func (m *MockEventPublisher) Publish(ctx context.Context, ev MessageEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// MockKafkaWriter mock KafkaWriter
type MockKafkaWriter struct {
	mock.Mock
}

// WriteMessages mock
func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

// MockRabbitRepo mock database.RabbitRepo
type MockRabbitRepo struct {
	mock.Mock
}

// Publish mock
func (m *MockRabbitRepo) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

// MockMinIO mock database.MinIOClientRepo
type MockMinIO struct {
	mock.Mock
}

// PresignGetURL mock
func (m *MockMinIO) PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectName, expiry)
	return args.String(0), args.Error(1)
}

// PresignPutURL mock
func (m *MockMinIO) PresignPutURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectName, expiry)
	return args.String(0), args.Error(1)
}

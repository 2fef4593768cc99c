package main

import (
	"testing"

	"chat_presence_service/internal/chat/app"
	"chat_presence_service/pkg/config"
	"chat_presence_service/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func init() {
	logger.SetNewNop()
}

func TestOpenPush_NoBrokerFallsBackToNoop(t *testing.T) {
	push, closeFn := openPush(config.Chat{})
	defer closeFn()
	assert.IsType(t, app.NewNoopPushNotifier(), push)
}

func TestOpenEvents_BlankBrokersFallBackToNoop(t *testing.T) {
	var cfg config.Chat
	cfg.Kafka.Brokers = []string{"", ""}
	events, closeFn := openEvents(cfg)
	defer closeFn()
	assert.IsType(t, app.NewNoopEventPublisher(), events)
}

func TestOpenMinIO_DisabledWithoutEndpoint(t *testing.T) {
	assert.Nil(t, openMinIO(config.Chat{}))
}

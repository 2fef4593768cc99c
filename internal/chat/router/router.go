package router

import (
	"context"

	"chat_presence_service/internal/chat/app"
	"chat_presence_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 註冊 websocket 路由, ctx ends every live connection on shutdown
func RegisterRoutes(ctx context.Context, r *fiber.App, chatWebsocket *app.ChatWebsocketHandler) {
	r.Use("/ws", middlewares.JWTMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(ctx, c)
	}))
}

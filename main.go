package main

import (
	"chat_presence_service/internal/api/router"

	"github.com/gofiber/fiber/v2"
)

// 只用於 swag init, 服務入口在 cmd/chat_service
// swag init output ./docs
func main() {
	app := fiber.New()

	// 注册路由
	router.RegisterRoutes(app, nil)
}

package router

import (
	"chat_presence_service/internal/api/handlers"
	"chat_presence_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册聊天相关的路由
// @title Chat Presence Service API
// @version 1.0
// @description Rooms, messages, read receipts and presence
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func RegisterRoutes(app *fiber.App, chat *handlers.ChatHandler) {
	app.Use(middlewares.RequestMetrics())

	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/", handlers.ConnectCheck)
	app.Post("/debug", handlers.DebugLogFlag)

	r := app.Group("/chat", middlewares.JWTMiddleware())

	r.Post("/private", chat.CreatePrivate)
	r.Post("/group", chat.CreateGroup)
	r.Post("/org", chat.CreateOrgRoom)

	r.Post("/inquiries", chat.CreateInquiry)
	r.Get("/inquiries", chat.DealerInquiries)
	r.Put("/inquiries/:id/status", chat.UpdateInquiryStatus)
	r.Put("/inquiries/:id/priority", chat.UpdateInquiryPriority)

	// 固定路徑要在 :id 之前
	r.Get("/rooms/unread-count", chat.UnreadByRoom)
	r.Get("/rooms", chat.ListRooms)
	r.Get("/rooms/:id", chat.GetRoom)
	r.Put("/rooms/:id", chat.UpdateRoom)
	r.Get("/rooms/:id/participants", chat.ListParticipants)
	r.Post("/rooms/:id/participants", chat.AddParticipants)
	r.Delete("/rooms/:id/participants/:userId", chat.RemoveParticipant)
	r.Put("/rooms/:id/participants/:userId/role", chat.UpdateParticipantRole)
	r.Post("/rooms/:id/leave", chat.LeaveRoom)

	r.Post("/rooms/:id/messages", chat.SendMessage)
	r.Get("/rooms/:id/messages", chat.History)
	r.Get("/rooms/:id/messages/search", chat.SearchRoom)
	r.Post("/rooms/:id/messages/read", chat.MarkRead)
	r.Post("/rooms/:id/typing", chat.Typing)
	r.Post("/rooms/:id/attachments", chat.AttachmentURL)

	r.Post("/messages", chat.DeprecatedSend)
	r.Get("/messages/search", chat.SearchAll)
	r.Put("/messages/:id", chat.EditMessage)
	r.Delete("/messages/:id", chat.DeleteMessage)
	r.Get("/unread-count", chat.UnreadCount)

	r.Post("/rooms/:id/invite-link", chat.CreateInviteLink)
	r.Get("/invites/:token", chat.GetInvite)
	r.Post("/invites/:token/join", chat.JoinInvite)
	r.Post("/rooms/:id/invitations", chat.InviteUser)
	r.Get("/invitations", chat.PendingInvitations)
	r.Post("/invitations/:id/accept", chat.AcceptInvitation)
	r.Post("/invitations/:id/reject", chat.RejectInvitation)

	r.Get("/presence/stats", chat.PresenceStats)
}
